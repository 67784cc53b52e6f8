package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ALSASource captures raw PCM from arecord.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdout  io.ReadCloser

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
}

func alsaArgs(cfg Config) []string {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return []string{
		"-q",
		"-D", device,
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", strconv.Itoa(cfg.Channels),
	}
}

func newALSASource(cfg Config, logger *slog.Logger) (*ALSASource, error) {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("alsa source: %w", err)
	}
	return &ALSASource{cfg: cfg, logger: logger}, nil
}

// Start launches arecord.
func (s *ALSASource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, "arecord", alsaArgs(s.cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("alsa source: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("alsa source: start arecord: %w", err)
	}
	s.cmd, s.stdout, s.running = cmd, stdout, true
	s.logger.Info("alsa source started", "device", s.cfg.Device, "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop terminates arecord.
func (s *ALSASource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.logger.Info("alsa source stopped")
	return nil
}

// Read returns the next full frame.
func (s *ALSASource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	stdout, running := s.stdout, s.running
	s.mu.Unlock()
	if !running {
		return AudioChunk{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return AudioChunk{}, err
	}

	buf := make([]byte, s.cfg.FrameBytes())
	if _, err := io.ReadFull(stdout, buf); err != nil {
		s.mu.Lock()
		stopped := !s.running
		s.mu.Unlock()
		if stopped || errors.Is(err, io.EOF) {
			return AudioChunk{}, io.EOF
		}
		return AudioChunk{}, fmt.Errorf("alsa source: read: %w", err)
	}
	var chunk AudioChunk
	chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
	s.chunksRead.Add(1)
	s.samplesRead.Add(int64(len(chunk.Samples)))
	return chunk, nil
}

func (s *ALSASource) Config() Config { return s.cfg }
func (s *ALSASource) Name() string   { return string(BackendALSA) }

// Close stops capture permanently.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns capture counters.
func (s *ALSASource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Running:     running,
		Backend:     string(BackendALSA),
	}
}

// ALSASink plays raw PCM through aplay with software volume.
type ALSASink struct {
	cfg    Config
	logger *slog.Logger
	volume atomic.Int32

	mu          sync.Mutex
	ctx         context.Context
	running     bool
	closed      bool
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	playedUntil time.Time

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

func newALSASink(cfg Config, logger *slog.Logger) (*ALSASink, error) {
	if _, err := exec.LookPath("aplay"); err != nil {
		return nil, fmt.Errorf("alsa sink: %w", err)
	}
	s := &ALSASink{cfg: cfg, logger: logger}
	s.volume.Store(DefaultVolume)
	return s, nil
}

// Start launches aplay.
func (s *ALSASink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	s.ctx = ctx
	if err := s.spawnLocked(); err != nil {
		return err
	}
	s.running = true
	s.logger.Info("alsa sink started", "device", s.cfg.Device, "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *ALSASink) spawnLocked() error {
	cmd := exec.CommandContext(s.ctx, "aplay", alsaArgs(s.cfg)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("alsa sink: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("alsa sink: start aplay: %w", err)
	}
	s.cmd, s.stdin = cmd, stdin
	s.playedUntil = time.Now()
	return nil
}

func (s *ALSASink) killLocked() {
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
}

// Stop terminates aplay.
func (s *ALSASink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.killLocked()
	return nil
}

// Write scales the chunk by the current volume and pipes it to aplay.
func (s *ALSASink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return io.ErrClosedPipe
	}
	samples := ApplyVolume(chunk.Samples, int(s.volume.Load()))
	if _, err := s.stdin.Write(SamplesToBytes(samples)); err != nil {
		return fmt.Errorf("alsa sink: write: %w", err)
	}
	now := time.Now()
	if s.playedUntil.Before(now) {
		s.playedUntil = now
	}
	s.playedUntil = s.playedUntil.Add(chunk.Duration())
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush waits until the audio written so far has had time to play.
func (s *ALSASink) Flush(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Until(s.playedUntil)
	s.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Clear drops buffered audio by restarting aplay.
func (s *ALSASink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.killLocked()
	return s.spawnLocked()
}

// SetVolume sets the software volume in percent.
func (s *ALSASink) SetVolume(percent int) {
	s.volume.Store(int32(clampVolume(percent)))
}

// Volume returns the software volume in percent.
func (s *ALSASink) Volume() int {
	return int(s.volume.Load())
}

func (s *ALSASink) Config() Config { return s.cfg }
func (s *ALSASink) Name() string   { return string(BackendALSA) }

// Close stops playback permanently.
func (s *ALSASink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns playback counters.
func (s *ALSASink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        string(BackendALSA),
	}
}

var (
	_ SourceWithStats = (*ALSASource)(nil)
	_ SinkWithStats   = (*ALSASink)(nil)
	_ VolumeSink      = (*ALSASink)(nil)
)
