package protocol

import (
	"encoding/json"
	"errors"
)

// NewClientHello opens a session. The device advertises MCP support.
func NewClientHello(version int, transport string, params AudioParams) Message {
	return Message{
		Type:        TypeHello,
		Version:     version,
		Transport:   transport,
		Features:    map[string]bool{"mcp": true},
		AudioParams: &params,
	}
}

// NewListenStart asks the backend to start recognizing uplink audio.
func NewListenStart(sessionID string, mode ListeningMode) Message {
	return Message{Type: TypeListen, SessionID: sessionID, State: StateStart, Mode: mode}
}

// NewListenStop ends a push-to-talk turn.
func NewListenStop(sessionID string) Message {
	return Message{Type: TypeListen, SessionID: sessionID, State: StateStop}
}

// NewWakeWordDetected reports the wake word that opened the turn.
func NewWakeWordDetected(sessionID, wakeWord string) Message {
	return Message{Type: TypeListen, SessionID: sessionID, State: StateDetect, Text: wakeWord}
}

// NewAbort interrupts the assistant's reply.
func NewAbort(sessionID, reason string) Message {
	return Message{Type: TypeAbort, SessionID: sessionID, Reason: reason}
}

// NewMCPMessage wraps a JSON-RPC payload.
func NewMCPMessage(sessionID string, payload []byte) Message {
	return Message{Type: TypeMCP, SessionID: sessionID, Payload: json.RawMessage(payload)}
}

// NewGoodbye closes the session.
func NewGoodbye(sessionID string) Message {
	return Message{Type: TypeGoodbye, SessionID: sessionID}
}

// NewMalformedReport tells the backend a message was rejected. Text carries
// the offending message type and Field the missing or invalid field, when
// known.
func NewMalformedReport(sessionID string, err error) Message {
	msg := Message{Type: TypeError, SessionID: sessionID, State: StateMalformed, Reason: err.Error()}
	var me *MalformedError
	if errors.As(err, &me) {
		msg.Text = string(me.Type)
		msg.Field = me.Field
	}
	return msg
}
