package audioio

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		from, to int
		wantLen  int
	}{
		{"same rate", 5, 16000, 16000, 5},
		{"downsample 2:1", 960, 48000, 24000, 480},
		{"upsample 2:3", 320, 16000, 24000, 480},
		{"server 24k to 16k", 1440, 24000, 16000, 960},
		{"empty", 0, 24000, 48000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]int16, tt.n)
			for i := range in {
				in[i] = int16(i)
			}
			if got := Resample(in, tt.from, tt.to); len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestPCMConversion(t *testing.T) {
	data := []byte{0x02, 0x01, 0x04, 0x03}
	samples := BytesToSamples(data)
	if len(samples) != 2 || samples[0] != 0x0102 || samples[1] != 0x0304 {
		t.Fatalf("BytesToSamples = %#v", samples)
	}
	if got := SamplesToBytes(samples); string(got) != string(data) {
		t.Errorf("SamplesToBytes = %v, want %v", got, data)
	}
	if got := SamplesToBytes([]int16{-1}); got[0] != 0xff || got[1] != 0xff {
		t.Errorf("negative sample = %v", got)
	}
}

func TestStereoToMono(t *testing.T) {
	got := StereoToMono([]int16{100, 200, -50, 50})
	if len(got) != 2 || got[0] != 150 || got[1] != 0 {
		t.Errorf("got %v", got)
	}
	c := AudioChunk{Samples: []int16{10, 30}, SampleRate: 16000, Channels: 2}.Mono()
	if c.Channels != 1 || c.Samples[0] != 20 {
		t.Errorf("Mono() = %+v", c)
	}
}

func TestApplyVolume(t *testing.T) {
	tests := []struct {
		percent int
		want    int16
	}{
		{100, 1000},
		{50, 500},
		{0, 0},
		{150, 1000},
		{-5, 0},
	}
	for _, tt := range tests {
		if got := ApplyVolume([]int16{1000}, tt.percent); got[0] != tt.want {
			t.Errorf("ApplyVolume(%d) = %d, want %d", tt.percent, got[0], tt.want)
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	if CalculateRMS(nil) != 0 {
		t.Error("empty RMS should be 0")
	}
	if CalculateRMS(make([]int16, 160)) != 0 {
		t.Error("silence RMS should be 0")
	}
	full := make([]int16, 160)
	for i := range full {
		full[i] = 16384
	}
	if got := CalculateRMS(full); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.FrameSize() != 960 || cfg.FrameBytes() != 1920 {
		t.Errorf("FrameSize=%d FrameBytes=%d", cfg.FrameSize(), cfg.FrameBytes())
	}
	bad := cfg.WithSampleRate(0)
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero sample rate")
	}
	bad = cfg
	bad.Channels = 3
	if err := bad.Validate(); err == nil {
		t.Error("expected error for 3 channels")
	}
}

func TestAudioChunkDuration(t *testing.T) {
	c := AudioChunk{Samples: make([]int16, 960), SampleRate: 16000, Channels: 1}
	if c.Duration() != 60*time.Millisecond {
		t.Errorf("Duration = %v", c.Duration())
	}
}

func TestMockSourcePushRead(t *testing.T) {
	src := NewMockSource(DefaultConfig(), log.Discard())
	ctx := context.Background()
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read before Start = %v, want EOF", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	src.Push(AudioChunk{Samples: []int16{1, 2, 3}, SampleRate: 16000, Channels: 1})
	chunk, err := src.Read(ctx)
	if err != nil || len(chunk.Samples) != 3 {
		t.Fatalf("Read = %+v, %v", chunk, err)
	}

	boom := errors.New("i2s fault")
	src.FailWith(boom)
	if _, err := src.Read(ctx); !errors.Is(err, boom) {
		t.Errorf("Read after FailWith = %v", err)
	}

	_ = src.Close()
	if err := src.Start(ctx); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close = %v", err)
	}
}

func TestMockSourceSineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 5 * time.Millisecond
	src := NewMockSource(cfg, log.Discard(), WithSineWave(440, 0.5))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = src.Start(ctx)
	defer src.Close()

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if CalculateRMS(chunk.Samples) < 0.1 {
		t.Errorf("expected a tone, RMS = %v", CalculateRMS(chunk.Samples))
	}
}

func TestMockSinkRecords(t *testing.T) {
	sink := NewMockSink(DefaultConfig(), log.Discard())
	ctx := context.Background()
	if err := sink.Write(ctx, AudioChunk{}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write before Start = %v", err)
	}
	_ = sink.Start(ctx)
	_ = sink.Write(ctx, AudioChunk{Samples: []int16{1}})
	_ = sink.Write(ctx, AudioChunk{Samples: []int16{2}})
	_ = sink.Clear()

	if got := sink.Chunks(); len(got) != 2 || got[1].Samples[0] != 2 {
		t.Errorf("Chunks = %+v", got)
	}
	if sink.Cleared() != 1 || sink.Stats().ChunksWritten != 2 {
		t.Errorf("stats = %+v cleared=%d", sink.Stats(), sink.Cleared())
	}
	sink.SetVolume(120)
	if sink.Volume() != 100 {
		t.Errorf("Volume = %d", sink.Volume())
	}
}

func TestNewSourceMock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	src, err := NewSource(cfg, log.Discard())
	if err != nil || src.Name() != "mock" {
		t.Fatalf("NewSource = %v, %v", src, err)
	}
	cfg.Backend = "pulse"
	if _, err := NewSink(cfg, log.Discard()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
