package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

// slowEncoder stamps each frame with its first sample and takes longer for
// some frames so workers finish out of order.
type slowEncoder struct {
	fail func(pcm []int16) bool
}

func (e *slowEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.fail != nil && e.fail(pcm) {
		return nil, errors.New("encoder fault")
	}
	time.Sleep(time.Duration(pcm[0]%4) * 3 * time.Millisecond)
	return []byte{byte(pcm[0])}, nil
}

type fakeDecoder struct {
	mu     sync.Mutex
	resets int
	fail   bool
}

func (d *fakeDecoder) Decode(packet []byte) ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return nil, errors.New("corrupt packet")
	}
	return make([]int16, 960), nil
}

func (d *fakeDecoder) Reset() error {
	d.mu.Lock()
	d.resets++
	d.mu.Unlock()
	return nil
}

func (d *fakeDecoder) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

func (d *fakeDecoder) SampleRate() int { return 16000 }

type recordingSender struct {
	mu   sync.Mutex
	pkts []*protocol.AudioStreamPacket
}

func (s *recordingSender) SendAudio(pkt *protocol.AudioStreamPacket) error {
	s.mu.Lock()
	s.pkts = append(s.pkts, pkt)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) Packets() []*protocol.AudioStreamPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.AudioStreamPacket(nil), s.pkts...)
}

type scriptedVAD struct {
	mu     sync.Mutex
	script []bool
	i      int
}

func (v *scriptedVAD) IsSpeech([]int16) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.i >= len(v.script) {
		return v.script[len(v.script)-1]
	}
	b := v.script[v.i]
	v.i++
	return b
}

type fixture struct {
	p       *Pipeline
	src     *audioio.MockSource
	sink    *audioio.MockSink
	dec     *fakeDecoder
	pool    *worker.Pool
	encoder *slowEncoder
}

func newFixture(t *testing.T, cfg Config, tweak func(*Deps)) *fixture {
	t.Helper()
	ioCfg := audioio.DefaultConfig()
	f := &fixture{
		src:     audioio.NewMockSource(ioCfg, log.Discard()),
		sink:    audioio.NewMockSink(ioCfg, log.Discard()),
		dec:     &fakeDecoder{},
		pool:    worker.New(worker.Config{Workers: 4, QueueSize: 64}, log.Discard()),
		encoder: &slowEncoder{},
	}
	deps := Deps{
		Source:   f.src,
		Sink:     f.sink,
		Pool:     f.pool,
		Encoders: func() (Encoder, error) { return f.encoder, nil },
		Decoder:  f.dec,
		Logger:   log.Discard(),
	}
	if tweak != nil {
		tweak(&deps)
	}
	p, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.p = p
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.pool.Start(ctx)
	if err := f.p.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = f.p.Stop()
		f.pool.Close()
		cancel()
	})
}

// pushFrames pushes n full frames whose samples all equal the frame index.
func (f *fixture) pushFrames(n int) {
	size := f.p.cfg.FrameSamples()
	for i := 0; i < n; i++ {
		samples := make([]int16, size)
		for j := range samples {
			samples[j] = int16(i)
		}
		f.src.Push(audioio.AudioChunk{Samples: samples, SampleRate: 16000, Channels: 1})
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresDependencies(t *testing.T) {
	ioCfg := audioio.DefaultConfig()
	full := Deps{
		Source:   audioio.NewMockSource(ioCfg, log.Discard()),
		Sink:     audioio.NewMockSink(ioCfg, log.Discard()),
		Pool:     worker.New(worker.DefaultConfig(), log.Discard()),
		Encoders: func() (Encoder, error) { return &slowEncoder{}, nil },
		Decoder:  &fakeDecoder{},
	}
	tests := []struct {
		name  string
		strip func(*Deps)
	}{
		{"source", func(d *Deps) { d.Source = nil }},
		{"sink", func(d *Deps) { d.Sink = nil }},
		{"pool", func(d *Deps) { d.Pool = nil }},
		{"encoders", func(d *Deps) { d.Encoders = nil }},
		{"decoder", func(d *Deps) { d.Decoder = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := full
			tt.strip(&d)
			if _, err := New(DefaultConfig(), d); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("New() error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

func TestNewEncoderFactoryFailure(t *testing.T) {
	ioCfg := audioio.DefaultConfig()
	_, err := New(DefaultConfig(), Deps{
		Source:   audioio.NewMockSource(ioCfg, log.Discard()),
		Sink:     audioio.NewMockSink(ioCfg, log.Discard()),
		Pool:     worker.New(worker.DefaultConfig(), log.Discard()),
		Encoders: func() (Encoder, error) { return nil, errors.New("no libopus") },
		Decoder:  &fakeDecoder{},
	})
	if !errors.Is(err, ErrHardwareFailure) {
		t.Errorf("New() error = %v, want ErrHardwareFailure", err)
	}
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.start(t)
	if err := f.p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestUplinkPreservesOrderUnderParallelEncode(t *testing.T) {
	const frames = 24
	f := newFixture(t, DefaultConfig(), nil)
	sender := &recordingSender{}
	f.p.SetSender(sender)
	f.p.SetSession("sess-1")
	f.p.EnableCapture(true)
	f.start(t)

	f.pushFrames(frames)
	eventually(t, "all packets sent", func() bool { return len(sender.Packets()) == frames })

	for i, pkt := range sender.Packets() {
		if pkt.Sequence != uint32(i) {
			t.Fatalf("packet %d has sequence %d", i, pkt.Sequence)
		}
		if pkt.Payload[0] != byte(i) {
			t.Fatalf("packet %d carries frame %d", i, pkt.Payload[0])
		}
		if pkt.SessionID != "sess-1" {
			t.Errorf("packet %d session = %q", i, pkt.SessionID)
		}
		if want := uint32(i * 60); pkt.Timestamp != want {
			t.Errorf("packet %d timestamp = %d, want %d", i, pkt.Timestamp, want)
		}
	}
}

func TestUplinkSkipsFailedFrames(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.encoder.fail = func(pcm []int16) bool { return pcm[0] == 2 }
	sender := &recordingSender{}
	f.p.SetSender(sender)
	f.p.EnableCapture(true)
	f.start(t)

	f.pushFrames(5)
	eventually(t, "remaining packets sent", func() bool { return len(sender.Packets()) == 4 })

	var got []byte
	for _, pkt := range sender.Packets() {
		got = append(got, pkt.Payload[0])
	}
	if fmt.Sprint(got) != "[0 1 3 4]" {
		t.Errorf("sent frames = %v, want [0 1 3 4]", got)
	}
	if s := f.p.Stats(); s.EncodeErrors != 1 {
		t.Errorf("EncodeErrors = %d, want 1", s.EncodeErrors)
	}
}

func TestCaptureDisabledSendsNothing(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	sender := &recordingSender{}
	f.p.SetSender(sender)
	f.start(t)

	f.pushFrames(6)
	eventually(t, "chunks consumed", func() bool { return f.p.Stats().ChunksCaptured == 6 })
	time.Sleep(20 * time.Millisecond)

	if n := len(sender.Packets()); n != 0 {
		t.Errorf("sent %d packets with capture disabled", n)
	}
	if n := f.p.OutboundQueueLen(); n != 0 {
		t.Errorf("OutboundQueueLen() = %d, want 0", n)
	}
}

func TestIncomingDroppedUnlessPlaying(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	for i := 0; i < 5; i++ {
		if f.p.HandleIncoming(&protocol.AudioStreamPacket{Sequence: uint32(i)}) {
			t.Fatalf("packet %d accepted with playback disabled", i)
		}
	}
	if n := f.p.DecodeQueueLen(); n != 0 {
		t.Errorf("DecodeQueueLen() = %d, want 0", n)
	}
	if s := f.p.Stats(); s.IncomingDropped != 5 {
		t.Errorf("IncomingDropped = %d, want 5", s.IncomingDropped)
	}
}

func TestEnablePlaybackIdempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.p.EnablePlayback(true)
	for i := 0; i < 3; i++ {
		f.p.HandleIncoming(&protocol.AudioStreamPacket{Sequence: uint32(i)})
	}
	f.p.EnablePlayback(true)
	if n := f.p.DecodeQueueLen(); n != 3 {
		t.Fatalf("re-enabling playback changed queue to %d, want 3", n)
	}

	f.p.EnablePlayback(false)
	f.p.EnablePlayback(false)
	if n := f.p.DecodeQueueLen(); n != 0 {
		t.Errorf("DecodeQueueLen() after disable = %d, want 0", n)
	}
	if n := f.sink.Cleared(); n != 1 {
		t.Errorf("sink cleared %d times, want 1", n)
	}
}

func TestEnableCaptureIdempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.p.EnableCapture(true)
	epoch := f.p.captureEpoch
	f.p.EnableCapture(true)
	if f.p.captureEpoch != epoch {
		t.Errorf("re-enabling capture bumped epoch %d -> %d", epoch, f.p.captureEpoch)
	}
	if !f.p.Capturing() {
		t.Error("Capturing() = false after enable")
	}
}

func TestDecodeQueueDropsNewest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecodeQueueSize = 2
	f := newFixture(t, cfg, nil)
	f.p.EnablePlayback(true)

	results := []bool{}
	for i := 0; i < 3; i++ {
		results = append(results, f.p.HandleIncoming(&protocol.AudioStreamPacket{Sequence: uint32(i)}))
	}
	if fmt.Sprint(results) != "[true true false]" {
		t.Errorf("HandleIncoming results = %v", results)
	}
	if s := f.p.Stats(); s.DecodeDropped != 1 {
		t.Errorf("DecodeDropped = %d, want 1", s.DecodeDropped)
	}
}

func TestPlaybackDrains(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.start(t)
	f.p.EnablePlayback(true)
	f.p.ResetDecoder()

	for i := 0; i < 4; i++ {
		if !f.p.HandleIncoming(&protocol.AudioStreamPacket{Sequence: uint32(i), Payload: []byte{1}}) {
			t.Fatalf("packet %d rejected", i)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := f.p.WaitPlaybackDrained(ctx); err != nil {
		t.Fatalf("WaitPlaybackDrained() error = %v", err)
	}
	if n := len(f.sink.Chunks()); n != 4 {
		t.Errorf("sink received %d chunks, want 4", n)
	}
	if n := f.dec.Resets(); n != 1 {
		t.Errorf("decoder reset %d times, want 1", n)
	}
}

func TestDecodeErrorsAreCounted(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.dec.fail = true
	f.start(t)
	f.p.EnablePlayback(true)
	f.p.HandleIncoming(&protocol.AudioStreamPacket{Payload: []byte{0xff}})

	eventually(t, "decode error counted", func() bool { return f.p.Stats().DecodeErrors == 1 })
	if n := len(f.sink.Chunks()); n != 0 {
		t.Errorf("sink received %d chunks after decode failure", n)
	}
}

func TestVoiceActivityReportsEdgesOnly(t *testing.T) {
	vad := &scriptedVAD{script: []bool{false, true, true, true, false, false, true}}
	f := newFixture(t, DefaultConfig(), func(d *Deps) { d.VAD = vad })

	var mu sync.Mutex
	var edges []bool
	f.p.OnVoiceActivity(func(speaking bool) {
		mu.Lock()
		edges = append(edges, speaking)
		mu.Unlock()
	})
	f.start(t)
	f.pushFrames(7)
	eventually(t, "chunks consumed", func() bool { return f.p.Stats().ChunksCaptured == 7 })

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(edges) != "[true false true]" {
		t.Errorf("edges = %v, want [true false true]", edges)
	}
}

func TestWakeWordFedOnlyWhileDetecting(t *testing.T) {
	ww := NewManualWakeWord()
	f := newFixture(t, DefaultConfig(), func(d *Deps) { d.WakeWord = ww })
	f.start(t)

	f.pushFrames(3)
	eventually(t, "chunks consumed", func() bool { return f.p.Stats().ChunksCaptured == 3 })
	if n := ww.Fed(); n != 0 {
		t.Fatalf("detector fed %d frames while stopped", n)
	}

	ww.StartDetection()
	f.pushFrames(2)
	eventually(t, "detector fed", func() bool { return ww.Fed() == 2 })
}

func TestCaptureHardwareFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	errCh := make(chan error, 1)
	f.p.OnError(func(err error) { errCh <- err })
	f.src.FailWith(errors.New("overrun"))
	f.start(t)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrHardwareFailure) {
			t.Errorf("error = %v, want ErrHardwareFailure", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no hardware failure reported")
	}
}

func TestPlaybackHardwareFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	errCh := make(chan error, 1)
	f.p.OnError(func(err error) { errCh <- err })
	f.sink.FailWith(errors.New("device unplugged"))
	f.start(t)
	f.p.EnablePlayback(true)
	f.p.HandleIncoming(&protocol.AudioStreamPacket{Payload: []byte{1}})

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrHardwareFailure) {
			t.Errorf("error = %v, want ErrHardwareFailure", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no hardware failure reported")
	}
}
