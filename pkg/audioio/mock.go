package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

// MockSource is an in-memory audio source. Chunks come from Push or, when
// configured with WithSineWave, from a generator paced at FrameDuration.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	ch      chan AudioChunk
	stopCh  chan struct{}
	readErr error

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = no generator
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave makes the source generate a tone on its own.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a mock source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	m := &MockSource{
		cfg:       cfg,
		logger:    log.Or(logger, "audioio"),
		ch:        make(chan AudioChunk, 64),
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	if m.frequency > 0 {
		go m.generateLoop(ctx, m.stopCh)
	}
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.Push(m.generateChunk())
		}
	}
}

func (m *MockSource) generateChunk() AudioChunk {
	n := m.cfg.FrameSize()
	samples := make([]int16, n*m.cfg.Channels)
	for i := 0; i < n; i++ {
		v := int16(m.amplitude * 32767 * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
		for ch := 0; ch < m.cfg.Channels; ch++ {
			samples[i*m.cfg.Channels+ch] = v
		}
		m.phase++
		if m.phase >= float64(m.cfg.SampleRate) {
			m.phase = 0
		}
	}
	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Push makes a chunk available to Read. Chunks pushed while the internal
// buffer is full are dropped and counted as overruns.
func (m *MockSource) Push(chunk AudioChunk) {
	select {
	case m.ch <- chunk:
	default:
		m.overruns.Add(1)
	}
}

// FailWith makes every subsequent Read return err.
func (m *MockSource) FailWith(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Stop halts capture.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	return nil
}

// Read returns the next pushed chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	running, stop, readErr := m.running, m.stopCh, m.readErr
	m.mu.Unlock()
	if readErr != nil {
		return AudioChunk{}, readErr
	}
	if !running {
		return AudioChunk{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case <-stop:
		return AudioChunk{}, io.EOF
	case chunk := <-m.ch:
		m.chunksRead.Add(1)
		m.samplesRead.Add(int64(len(chunk.Samples)))
		return chunk, nil
	}
}

func (m *MockSource) Config() Config { return m.cfg }
func (m *MockSource) Name() string   { return string(BackendMock) }

// Close stops the source permanently.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns capture counters.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     string(BackendMock),
	}
}

// MockSink records everything written to it.
type MockSink struct {
	cfg    Config
	logger *slog.Logger
	volume atomic.Int32

	mu       sync.Mutex
	running  bool
	closed   bool
	chunks   []AudioChunk
	writeErr error
	cleared  int

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewMockSink creates a mock sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	m := &MockSink{cfg: cfg, logger: log.Or(logger, "audioio")}
	m.volume.Store(DefaultVolume)
	return m
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

// FailWith makes every subsequent Write return err.
func (m *MockSink) FailWith(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Write records a chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	m.chunks = append(m.chunks, chunk)
	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush returns immediately; nothing is really played.
func (m *MockSink) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Clear counts the call. Recorded chunks are kept for inspection.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	m.cleared++
	m.mu.Unlock()
	return nil
}

// Chunks returns a copy of every recorded chunk.
func (m *MockSink) Chunks() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AudioChunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Cleared returns how many times Clear was called.
func (m *MockSink) Cleared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// SetVolume sets the recorded volume in percent.
func (m *MockSink) SetVolume(percent int) { m.volume.Store(int32(clampVolume(percent))) }

// Volume returns the volume in percent.
func (m *MockSink) Volume() int { return int(m.volume.Load()) }

func (m *MockSink) Config() Config { return m.cfg }
func (m *MockSink) Name() string   { return string(BackendMock) }

// Close stops the sink permanently.
func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

// Stats returns playback counters.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return SinkStats{
		ChunksWritten:  m.chunksWritten.Load(),
		SamplesWritten: m.samplesWritten.Load(),
		Running:        running,
		Backend:        string(BackendMock),
	}
}

var (
	_ SourceWithStats = (*MockSource)(nil)
	_ SinkWithStats   = (*MockSink)(nil)
	_ VolumeSink      = (*MockSink)(nil)
)
