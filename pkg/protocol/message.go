// Package protocol defines the session messages exchanged between the device
// and the AI backend: type-tagged JSON control messages and binary audio packets.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a JSON session message.
type MessageType string

const (
	// Device → backend
	TypeHello   MessageType = "hello"   // Session handshake
	TypeListen  MessageType = "listen"  // Start/stop listening, wake word detected
	TypeAbort   MessageType = "abort"   // Interrupt the current reply
	TypeGoodbye MessageType = "goodbye" // Close the session
	TypeError   MessageType = "error"   // A backend message the device rejected

	// Backend → device
	TypeTTS    MessageType = "tts"    // Speech synthesis progress
	TypeSTT    MessageType = "stt"    // Recognized user speech
	TypeLLM    MessageType = "llm"    // Assistant emotion
	TypeSystem MessageType = "system" // Device command (reboot)
	TypeAlert  MessageType = "alert"  // Status alert for the display

	// Bidirectional
	TypeMCP MessageType = "mcp" // JSON-RPC envelope
)

// Message sub-states.
const (
	StateStart         = "start"
	StateStop          = "stop"
	StateSentenceStart = "sentence_start"
	StateSentenceEnd   = "sentence_end"
	StateDetect        = "detect"
	StateMalformed     = "malformed"
)

// ListeningMode tells the backend how the end of user speech is decided.
type ListeningMode string

const (
	// ModeAuto lets the backend detect the end of speech; the device listens
	// again after each reply.
	ModeAuto ListeningMode = "auto"
	// ModeManual is push-to-talk; the device sends stop itself.
	ModeManual ListeningMode = "manual"
	// ModeRealtime keeps the microphone open while speaking (requires AEC).
	ModeRealtime ListeningMode = "realtime"
)

// ParseListeningMode validates a mode name.
func ParseListeningMode(s string) (ListeningMode, error) {
	switch m := ListeningMode(s); m {
	case ModeAuto, ModeManual, ModeRealtime:
		return m, nil
	}
	return "", fmt.Errorf("protocol: unknown listening mode %q", s)
}

// AbortReasonWakeWord is sent when the user interrupts with the wake word.
const AbortReasonWakeWord = "wake_word_detected"

// AudioParams describes the audio format of one direction of the session.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// DefaultAudioParams is the device's uplink format: 16 kHz mono Opus, 60 ms frames.
func DefaultAudioParams() AudioParams {
	return AudioParams{
		Format:        "opus",
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 60,
	}
}

// Message is the JSON envelope for every control message.
type Message struct {
	Type        MessageType     `json:"type"`
	SessionID   string          `json:"session_id,omitempty"`
	Version     int             `json:"version,omitempty"`
	Transport   string          `json:"transport,omitempty"`
	Features    map[string]bool `json:"features,omitempty"`
	AudioParams *AudioParams    `json:"audio_params,omitempty"`
	State       string          `json:"state,omitempty"`
	Mode        ListeningMode   `json:"mode,omitempty"`
	Text        string          `json:"text,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Field       string          `json:"field,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// WithSession returns a copy tagged with the session id.
func (m Message) WithSession(id string) Message {
	m.SessionID = id
	return m
}
