package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker.
type Sink interface {
	// Start begins playback. Calling Start on a running sink is a no-op.
	Start(ctx context.Context) error

	// Stop halts playback. It is safe to call Stop multiple times.
	Stop() error

	// Write queues a chunk for output. It may block while the device buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush waits for all buffered audio to be played.
	Flush(ctx context.Context) error

	// Clear discards buffered audio immediately.
	Clear() error

	// Config returns the playback configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// SinkStats contains playback counters.
type SinkStats struct {
	ChunksWritten  int64  `json:"chunks_written"`
	SamplesWritten int64  `json:"samples_written"`
	Running        bool   `json:"running"`
	Backend        string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

// VolumeSink is a sink with software volume.
type VolumeSink interface {
	Sink
	SetVolume(percent int)
	Volume() int
}
