package audio

import (
	"fmt"
	"time"
)

// Config holds pipeline tuning.
type Config struct {
	// SampleRate is the uplink encode rate. Default: 16000.
	SampleRate int

	// FrameDuration is the uplink frame size. Default: 60ms.
	FrameDuration time.Duration

	// OutboundQueueSize bounds encoded packets waiting to be sent.
	// Overflow drops the oldest packet. Default: 40 (2.4 s of audio).
	OutboundQueueSize int

	// DecodeQueueSize bounds received packets waiting for playback.
	// Overflow drops the newest packet. Default: 40.
	DecodeQueueSize int

	// EncoderPoolSize is the number of encoder instances shared by the encode
	// tasks. It should match the worker count. Default: 2.
	EncoderPoolSize int

	// VADThreshold is the normalized RMS treated as speech. Default: 0.02.
	VADThreshold float64

	// VADWindow is the number of frames in the VAD smoothing window. Default: 3.
	VADWindow int

	// NoiseFloor mutes frames below this normalized RMS. Default: 0.002.
	NoiseFloor float64
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameDuration:     60 * time.Millisecond,
		OutboundQueueSize: 40,
		DecodeQueueSize:   40,
		EncoderPoolSize:   2,
		VADThreshold:      0.02,
		VADWindow:         3,
		NoiseFloor:        0.002,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("audio: frame duration must be positive, got %v", c.FrameDuration)
	}
	if c.OutboundQueueSize < 1 || c.DecodeQueueSize < 1 {
		return fmt.Errorf("audio: queue sizes must be at least 1")
	}
	if c.EncoderPoolSize < 1 {
		return fmt.Errorf("audio: encoder pool size must be at least 1")
	}
	return nil
}

// FrameSamples returns the samples in one uplink frame.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}
