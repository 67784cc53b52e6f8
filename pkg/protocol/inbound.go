package protocol

import (
	"encoding/json"
	"strings"
)

// Inbound is a classified backend message. The set of implementations is
// closed; unrecognized types decode to Other.
type Inbound interface {
	Type() MessageType
	inbound()
}

// TTSEvent reports speech synthesis progress.
type TTSEvent struct {
	State string
	Text  string
}

// STTEvent carries recognized user speech.
type STTEvent struct {
	Text string
}

// EmotionEvent sets the assistant's displayed emotion.
type EmotionEvent struct {
	Emotion string
	Text    string
}

// ToolCallEnvelope carries a JSON-RPC payload for the dispatcher.
type ToolCallEnvelope struct {
	Payload json.RawMessage
}

// HelloEvent is the backend's handshake reply.
type HelloEvent struct {
	SessionID   string
	Transport   string
	AudioParams *AudioParams
}

// GoodbyeEvent means the backend closed the session.
type GoodbyeEvent struct {
	SessionID string
}

// SystemEvent is a device command such as "reboot".
type SystemEvent struct {
	Command string
}

// AlertEvent is a status alert for the display.
type AlertEvent struct {
	Status  string
	Message string
	Emotion string
}

// Other is a well-formed message with an unrecognized type.
type Other struct {
	Kind MessageType
	Raw  json.RawMessage
}

func (TTSEvent) Type() MessageType         { return TypeTTS }
func (STTEvent) Type() MessageType         { return TypeSTT }
func (EmotionEvent) Type() MessageType     { return TypeLLM }
func (ToolCallEnvelope) Type() MessageType { return TypeMCP }
func (HelloEvent) Type() MessageType       { return TypeHello }
func (GoodbyeEvent) Type() MessageType     { return TypeGoodbye }
func (SystemEvent) Type() MessageType      { return TypeSystem }
func (AlertEvent) Type() MessageType       { return TypeAlert }
func (o Other) Type() MessageType          { return o.Kind }

func (TTSEvent) inbound()         {}
func (STTEvent) inbound()         {}
func (EmotionEvent) inbound()     {}
func (ToolCallEnvelope) inbound() {}
func (HelloEvent) inbound()       {}
func (GoodbyeEvent) inbound()     {}
func (SystemEvent) inbound()      {}
func (AlertEvent) inbound()       {}
func (Other) inbound()            {}

// inboundWire distinguishes absent fields from empty ones.
type inboundWire struct {
	Type        *string         `json:"type"`
	SessionID   string          `json:"session_id"`
	Transport   string          `json:"transport"`
	AudioParams *AudioParams    `json:"audio_params"`
	State       *string         `json:"state"`
	Text        *string         `json:"text"`
	Emotion     *string         `json:"emotion"`
	Payload     json.RawMessage `json:"payload"`
	Command     *string         `json:"command"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
}

// ParseInbound decodes a raw backend message once into its variant.
// Unparsable JSON, a missing type or a missing required field produce a
// *MalformedError.
func ParseInbound(raw []byte) (Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON", Err: err}
	}
	if w.Type == nil || *w.Type == "" {
		return nil, &MalformedError{Field: "type", Reason: "missing"}
	}
	t := MessageType(*w.Type)

	switch t {
	case TypeTTS:
		if w.State == nil {
			return nil, &MalformedError{Type: t, Field: "state", Reason: "missing"}
		}
		switch *w.State {
		case StateStart, StateStop, StateSentenceStart, StateSentenceEnd:
		default:
			return nil, &MalformedError{Type: t, Field: "state", Reason: "unknown value " + *w.State}
		}
		return TTSEvent{State: *w.State, Text: deref(w.Text)}, nil

	case TypeSTT:
		if w.Text == nil {
			return nil, &MalformedError{Type: t, Field: "text", Reason: "missing"}
		}
		return STTEvent{Text: *w.Text}, nil

	case TypeLLM:
		if w.Emotion == nil || strings.TrimSpace(*w.Emotion) == "" {
			return nil, &MalformedError{Type: t, Field: "emotion", Reason: "missing"}
		}
		return EmotionEvent{Emotion: *w.Emotion, Text: deref(w.Text)}, nil

	case TypeMCP:
		if len(w.Payload) == 0 || string(w.Payload) == "null" {
			return nil, &MalformedError{Type: t, Field: "payload", Reason: "missing"}
		}
		return ToolCallEnvelope{Payload: w.Payload}, nil

	case TypeHello:
		return HelloEvent{SessionID: w.SessionID, Transport: w.Transport, AudioParams: w.AudioParams}, nil

	case TypeGoodbye:
		return GoodbyeEvent{SessionID: w.SessionID}, nil

	case TypeSystem:
		if w.Command == nil {
			return nil, &MalformedError{Type: t, Field: "command", Reason: "missing"}
		}
		return SystemEvent{Command: *w.Command}, nil

	case TypeAlert:
		return AlertEvent{Status: w.Status, Message: w.Message, Emotion: deref(w.Emotion)}, nil
	}
	return Other{Kind: t, Raw: json.RawMessage(raw)}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
