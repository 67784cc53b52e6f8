package audioio

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

// NewSource opens the microphone on cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend, logger, err := prepare(cfg, logger, "source")
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendALSA:
		return newALSASource(cfg, logger)
	}
	return nil, fmt.Errorf("audioio: unsupported backend %q", backend)
}

// NewSink opens the speaker on cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	backend, logger, err := prepare(cfg, logger, "sink")
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendALSA:
		return newALSASink(cfg, logger)
	}
	return nil, fmt.Errorf("audioio: unsupported backend %q", backend)
}

// prepare validates cfg and resolves auto to the platform backend.
func prepare(cfg Config, logger *slog.Logger, kind string) (Backend, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("audioio: invalid %s config: %w", kind, err)
	}
	logger = log.Or(logger, "audioio")
	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = BackendMock
		if runtime.GOOS == "linux" {
			backend = BackendALSA
		}
	}
	logger.Info("opening audio "+kind,
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameDuration.Milliseconds(),
	)
	return backend, logger, nil
}
