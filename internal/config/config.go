// Package config holds the agent configuration and loads it from a YAML
// file, a .env file and VOICEAGENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/board"
	"github.com/teslashibe/go-voiceagent/pkg/ota"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/transport"
	"github.com/teslashibe/go-voiceagent/pkg/web"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

// Config is the complete agent configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Tools     ToolsConfig     `yaml:"tools"`
	OTA       ota.Config      `yaml:"ota"`
	Dashboard web.Config      `yaml:"dashboard"`
	Settings  SettingsConfig  `yaml:"settings"`
	Log       LogConfig       `yaml:"log"`
}

// DeviceConfig identifies the device.
type DeviceConfig struct {
	// Board selects a registered board plugin. Default: "sim".
	Board string `yaml:"board"`

	// DeviceID defaults to the first hardware address of the host.
	DeviceID string `yaml:"device_id"`

	// ClientID defaults to a random UUID.
	ClientID string `yaml:"client_id"`

	// Version is the firmware version reported to the servers.
	Version string `yaml:"version"`
}

// ServerConfig is the conversation backend.
type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	// ProtocolVersion 1 sends raw Opus frames, 2 sends RTP packets.
	ProtocolVersion int           `yaml:"protocol_version"`
	HelloTimeout    time.Duration `yaml:"hello_timeout"`
	KeepAlive       time.Duration `yaml:"keepalive"`
}

// AudioConfig tunes audio I/O and the pipeline.
type AudioConfig struct {
	Backend          audioio.Backend `yaml:"backend"`
	InputDevice      string          `yaml:"input_device"`
	OutputDevice     string          `yaml:"output_device"`
	InputSampleRate  int             `yaml:"input_sample_rate"`
	OutputSampleRate int             `yaml:"output_sample_rate"`
	FrameDuration    time.Duration   `yaml:"frame_duration"`
	EncodeWorkers    int             `yaml:"encode_workers"`
	TaskQueue        int             `yaml:"task_queue"`
	OutboundQueue    int             `yaml:"outbound_queue"`
	DecodeQueue      int             `yaml:"decode_queue"`
	VADThreshold     float64         `yaml:"vad_threshold"`
	ListeningMode    string          `yaml:"listening_mode"`
}

// ToolsConfig sizes the pool that runs tool calls. It is separate from the
// encode workers so a slow tool never holds up the uplink.
type ToolsConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

// ReconnectConfig is the backoff applied after a transport failure.
type ReconnectConfig struct {
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	MaxAttempts       int           `yaml:"max_attempts"`
	FatalOnExhaustion bool          `yaml:"fatal_on_exhaustion"`
}

// SettingsConfig locates the persisted settings file.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	tc := transport.DefaultConfig()
	pc := audio.DefaultConfig()
	wc := worker.DefaultConfig()
	return Config{
		Device: DeviceConfig{
			Board:   board.SimName,
			Version: "1.0.0",
		},
		Server: ServerConfig{
			ProtocolVersion: tc.ProtocolVersion,
			HelloTimeout:    tc.HelloTimeout,
			KeepAlive:       tc.KeepAlive,
		},
		Audio: AudioConfig{
			Backend:          audioio.BackendAuto,
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
			FrameDuration:    pc.FrameDuration,
			EncodeWorkers:    wc.Workers,
			TaskQueue:        wc.QueueSize,
			OutboundQueue:    pc.OutboundQueueSize,
			DecodeQueue:      pc.DecodeQueueSize,
			VADThreshold:     pc.VADThreshold,
			ListeningMode:    string(protocol.ModeAuto),
		},
		Reconnect: ReconnectConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			MaxAttempts:    5,
		},
		Tools:     ToolsConfig{Workers: 2, Queue: 16},
		OTA:       ota.DefaultConfig(),
		Dashboard: web.DefaultConfig(),
		Settings:  SettingsConfig{Path: "settings.yaml"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks the configuration. An empty server URL is allowed so
// offline commands work; the session transport rejects it when used.
func (c Config) Validate() error {
	var errs []error
	if c.Device.Board == "" {
		errs = append(errs, errors.New("device.board is required"))
	}
	if c.Server.ProtocolVersion != 1 && c.Server.ProtocolVersion != 2 {
		errs = append(errs, fmt.Errorf("server.protocol_version must be 1 or 2, got %d", c.Server.ProtocolVersion))
	}
	if _, err := protocol.ParseListeningMode(c.Audio.ListeningMode); err != nil {
		errs = append(errs, fmt.Errorf("audio.listening_mode: %w", err))
	}
	if c.Audio.InputSampleRate <= 0 || c.Audio.OutputSampleRate <= 0 {
		errs = append(errs, errors.New("audio sample rates must be positive"))
	}
	if c.Audio.EncodeWorkers < 1 || c.Audio.TaskQueue < 1 {
		errs = append(errs, errors.New("audio.encode_workers and audio.task_queue must be at least 1"))
	}
	if c.Tools.Workers < 1 || c.Tools.Queue < 1 {
		errs = append(errs, errors.New("tools.workers and tools.queue must be at least 1"))
	}
	if c.Reconnect.InitialBackoff <= 0 || c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		errs = append(errs, errors.New("reconnect: need 0 < initial_backoff <= max_backoff"))
	}
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, errors.New("reconnect.max_attempts must be at least 1"))
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		errs = append(errs, fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port))
	}
	if err := c.OTA.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.pipeline().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Mode returns the configured listening mode.
func (c Config) Mode() protocol.ListeningMode {
	m, err := protocol.ParseListeningMode(c.Audio.ListeningMode)
	if err != nil {
		return protocol.ModeAuto
	}
	return m
}

// Transport returns the session transport configuration.
func (c Config) Transport() transport.Config {
	tc := transport.DefaultConfig()
	tc.URL = c.Server.URL
	tc.Token = c.Server.Token
	tc.DeviceID = c.Device.DeviceID
	tc.ClientID = c.Device.ClientID
	tc.ProtocolVersion = c.Server.ProtocolVersion
	tc.HelloTimeout = c.Server.HelloTimeout
	tc.KeepAlive = c.Server.KeepAlive
	tc.AudioParams.FrameDuration = int(c.Audio.FrameDuration / time.Millisecond)
	return tc
}

func (c Config) pipeline() audio.Config {
	pc := audio.DefaultConfig()
	pc.FrameDuration = c.Audio.FrameDuration
	pc.OutboundQueueSize = c.Audio.OutboundQueue
	pc.DecodeQueueSize = c.Audio.DecodeQueue
	pc.EncoderPoolSize = c.Audio.EncodeWorkers
	pc.VADThreshold = c.Audio.VADThreshold
	return pc
}

// Pipeline returns the audio pipeline configuration.
func (c Config) Pipeline() audio.Config {
	return c.pipeline()
}

// EncodeWorkers returns the pool configuration for audio encode tasks.
func (c Config) EncodeWorkers() worker.Config {
	return worker.Config{Workers: c.Audio.EncodeWorkers, QueueSize: c.Audio.TaskQueue}
}

// ToolWorkers returns the pool configuration for tool calls.
func (c Config) ToolWorkers() worker.Config {
	return worker.Config{Workers: c.Tools.Workers, QueueSize: c.Tools.Queue}
}

// Capture returns the microphone configuration.
func (c Config) Capture() audioio.Config {
	ac := audioio.DefaultConfig()
	ac.Backend = c.Audio.Backend
	ac.Device = c.Audio.InputDevice
	ac.SampleRate = c.Audio.InputSampleRate
	ac.FrameDuration = c.Audio.FrameDuration
	return ac
}

// Playback returns the speaker configuration.
func (c Config) Playback() audioio.Config {
	ac := audioio.DefaultConfig()
	ac.Backend = c.Audio.Backend
	ac.Device = c.Audio.OutputDevice
	ac.SampleRate = c.Audio.OutputSampleRate
	ac.FrameDuration = c.Audio.FrameDuration
	return ac
}

// Identity returns the device identity reported to the OTA server.
func (c Config) Identity() ota.Identity {
	return ota.Identity{
		DeviceID: c.Device.DeviceID,
		ClientID: c.Device.ClientID,
		Board:    c.Device.Board,
		Version:  c.Device.Version,
	}
}
