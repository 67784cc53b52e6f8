// Package hub is a websocket broadcast hub using channel-based fan-out.
// One goroutine owns the client set; each client has its own write pump.
package hub

import (
	"encoding/json"
	"time"
)

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame.
	BinaryMessage
)

// Message is one frame queued for every client.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Event is the JSON envelope the dashboard understands.
type Event struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewEvent encodes an Event of the given kind.
func NewEvent(kind string, data any) (Message, error) {
	b, err := json.Marshal(Event{Kind: kind, Time: time.Now(), Data: data})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}
