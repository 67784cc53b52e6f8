// Package audioio provides audio capture and playback for the device.
//
// Backends:
//   - ALSA (Linux) - streams PCM through the arecord/aplay utilities
//   - Mock - tests and development without hardware
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects ALSA on Linux and the mock elsewhere.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA for audio I/O.
	BackendALSA Backend = "alsa"
	// BackendMock uses an in-memory implementation.
	BackendMock Backend = "mock"
)

// Config holds audio configuration for one direction.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// FrameDuration is the length of one chunk.
	// Default: 60ms, the uplink Opus frame size.
	FrameDuration time.Duration `yaml:"frame_duration" json:"frame_duration"`

	// Device is the ALSA device identifier ("default", "plughw:1,0").
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns the capture defaults: 16 kHz mono, 60 ms chunks.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 60 * time.Millisecond,
	}
}

// WithSampleRate returns a copy with the given rate.
func (c Config) WithSampleRate(rate int) Config {
	c.SampleRate = rate
	return c
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	return nil
}

// FrameSize returns the number of samples per channel in one chunk.
func (c *Config) FrameSize() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// FrameBytes returns the size of one chunk in bytes (int16 samples).
func (c *Config) FrameBytes() int {
	return c.FrameSize() * c.Channels * 2
}
