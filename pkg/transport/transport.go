// Package transport carries the session between the device and the AI
// backend: JSON control messages in both directions and compressed audio
// packets.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// Transport is a session connection to the backend.
//
// Callbacks registered with OnIncomingJSON and OnIncomingAudio are invoked
// from a single read goroutine in receive order and must not block.
type Transport interface {
	// Open connects and completes the hello handshake.
	Open(ctx context.Context) error
	// Close sends goodbye and disconnects. OnDisconnected receives nil.
	Close() error
	IsOpen() bool
	SessionID() string
	// ServerAudioParams is the downlink format announced in the server hello.
	ServerAudioParams() protocol.AudioParams

	// SendText sends a control message tagged with the session id.
	SendText(msg protocol.Message) error
	SendAudio(pkt *protocol.AudioStreamPacket) error
	SendStartListening(mode protocol.ListeningMode) error

	OnIncomingJSON(fn func(raw []byte))
	OnIncomingAudio(fn func(pkt *protocol.AudioStreamPacket))
	OnConnected(fn func(sessionID string))
	// OnDisconnected fires once per session. err is nil after Close.
	OnDisconnected(fn func(err error))
}

// Config holds session settings.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	// Token is sent as a bearer token.
	Token string `yaml:"token"`

	DeviceID string `yaml:"device_id"`
	ClientID string `yaml:"client_id"`

	// ProtocolVersion selects binary audio framing.
	// 1 = raw Opus frames, 2 = RTP packets. Default: 1.
	ProtocolVersion int `yaml:"protocol_version"`

	// HelloTimeout bounds the wait for the server hello. Default: 10s.
	HelloTimeout time.Duration `yaml:"hello_timeout"`

	// KeepAlive is the ping interval. Default: 30s.
	KeepAlive time.Duration `yaml:"keepalive"`

	// ReadTimeout closes a session that stays silent this long. Default: 120s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// AudioParams is the uplink format announced in the client hello.
	AudioParams protocol.AudioParams `yaml:"-"`
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion: 1,
		HelloTimeout:    10 * time.Second,
		KeepAlive:       30 * time.Second,
		ReadTimeout:     120 * time.Second,
		AudioParams:     protocol.DefaultAudioParams(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("transport: url is required")
	}
	if c.ProtocolVersion != 1 && c.ProtocolVersion != 2 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.ProtocolVersion)
	}
	if c.HelloTimeout <= 0 {
		return fmt.Errorf("transport: hello timeout must be positive")
	}
	return nil
}
