// Package audio moves audio between the device hardware and the session.
//
// Capture path: source → enhancer → VAD → wake word → frame assembly →
// encode tasks on the worker pool → sequence reordering → bounded outbound
// queue → sender.
//
// Playback path: received packet (accepted only while playback is enabled) →
// bounded decode queue → single playback goroutine → decoder → resample → sink.
//
// Disabling capture or playback bumps an epoch; queued and in-flight packets
// from an older epoch are dropped rather than processed.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

// Submitter runs encode tasks. *worker.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Sender delivers uplink packets to the session transport.
type Sender interface {
	SendAudio(pkt *protocol.AudioStreamPacket) error
}

// Deps are the pipeline's collaborators. Enhancer, VAD and WakeWord are optional.
type Deps struct {
	Source   audioio.Source
	Sink     audioio.Sink
	Pool     Submitter
	Encoders EncoderFactory
	Decoder  Decoder
	Enhancer Enhancer
	VAD      VAD
	WakeWord WakeWord
	Logger   *slog.Logger
}

// Stats are cumulative pipeline counters.
type Stats struct {
	ChunksCaptured  uint64 `json:"chunks_captured"`
	PacketsEncoded  uint64 `json:"packets_encoded"`
	EncodeErrors    uint64 `json:"encode_errors"`
	OutboundDropped uint64 `json:"outbound_dropped"`
	PacketsSent     uint64 `json:"packets_sent"`
	SendErrors      uint64 `json:"send_errors"`
	StaleDropped    uint64 `json:"stale_dropped"`
	IncomingDropped uint64 `json:"incoming_dropped"`
	DecodeDropped   uint64 `json:"decode_dropped"`
	PacketsDecoded  uint64 `json:"packets_decoded"`
	DecodeErrors    uint64 `json:"decode_errors"`
}

type counters struct {
	chunksCaptured  atomic.Uint64
	packetsEncoded  atomic.Uint64
	encodeErrors    atomic.Uint64
	outboundDropped atomic.Uint64
	packetsSent     atomic.Uint64
	sendErrors      atomic.Uint64
	staleDropped    atomic.Uint64
	incomingDropped atomic.Uint64
	decodeDropped   atomic.Uint64
	packetsDecoded  atomic.Uint64
	decodeErrors    atomic.Uint64
}

// Pipeline is the device audio engine.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	encoders chan Encoder
	outbound *PacketQueue
	decodeQ  *PacketQueue
	reorder  *reorderer
	edge     vadEdge

	mu           sync.Mutex
	started      bool
	cancel       context.CancelFunc
	capturing    bool
	captureEpoch uint64
	seq          uint32
	playing      bool
	playEpoch    uint64
	sender       Sender
	sessionID    string
	onVAD        func(speaking bool)
	onError      func(err error)

	wg           sync.WaitGroup
	pending      atomic.Int64 // packets accepted for playback and not yet finished
	resetDecoder atomic.Bool

	stats counters
}

// New creates a pipeline. Encoder instances are created up front.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: source", ErrMissingDependency)
	case deps.Sink == nil:
		return nil, fmt.Errorf("%w: sink", ErrMissingDependency)
	case deps.Pool == nil:
		return nil, fmt.Errorf("%w: worker pool", ErrMissingDependency)
	case deps.Encoders == nil:
		return nil, fmt.Errorf("%w: encoder factory", ErrMissingDependency)
	case deps.Decoder == nil:
		return nil, fmt.Errorf("%w: decoder", ErrMissingDependency)
	}

	p := &Pipeline{
		cfg:      cfg,
		deps:     deps,
		logger:   log.Or(deps.Logger, "audio"),
		encoders: make(chan Encoder, cfg.EncoderPoolSize),
		outbound: NewPacketQueue(cfg.OutboundQueueSize, DropOldest),
		decodeQ:  NewPacketQueue(cfg.DecodeQueueSize, DropNewest),
	}
	for i := 0; i < cfg.EncoderPoolSize; i++ {
		enc, err := deps.Encoders()
		if err != nil {
			return nil, fmt.Errorf("%w: create encoder: %w", ErrHardwareFailure, err)
		}
		p.encoders <- enc
	}
	p.reorder = newReorderer(p.enqueueOutbound)
	return p, nil
}

// OnVoiceActivity registers a callback fired only when speech presence
// changes. It runs on the audio loop and must not block.
func (p *Pipeline) OnVoiceActivity(fn func(speaking bool)) {
	p.mu.Lock()
	p.onVAD = fn
	p.mu.Unlock()
}

// OnError registers a callback for hardware failures.
func (p *Pipeline) OnError(fn func(err error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// SetSender sets where uplink packets go. nil drops them.
func (p *Pipeline) SetSender(s Sender) {
	p.mu.Lock()
	p.sender = s
	p.mu.Unlock()
}

// SetSession tags subsequent uplink packets.
func (p *Pipeline) SetSession(id string) {
	p.mu.Lock()
	p.sessionID = id
	p.mu.Unlock()
}

// Start opens the hardware and launches the audio, sender and playback loops.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	if err := p.deps.Sink.Start(ctx); err != nil {
		return fmt.Errorf("%w: start sink: %w", ErrHardwareFailure, err)
	}
	if err := p.deps.Source.Start(ctx); err != nil {
		_ = p.deps.Sink.Stop()
		return fmt.Errorf("%w: start source: %w", ErrHardwareFailure, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	p.wg.Add(3)
	go p.captureLoop(ctx)
	go p.senderLoop(ctx)
	go p.playbackLoop(ctx)
	p.logger.Info("audio pipeline started",
		"sample_rate", p.cfg.SampleRate,
		"frame_ms", p.cfg.FrameDuration.Milliseconds(),
		"outbound_queue", p.cfg.OutboundQueueSize,
		"decode_queue", p.cfg.DecodeQueueSize,
	)
	return nil
}

// Stop halts every loop and releases the hardware.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	srcErr := p.deps.Source.Stop()
	p.outbound.Close()
	p.decodeQ.Close()
	p.wg.Wait()
	p.edge.reset()
	sinkErr := p.deps.Sink.Stop()
	p.logger.Info("audio pipeline stopped")
	return errors.Join(srcErr, sinkErr)
}

// EnableCapture turns the uplink on or off. Turning it off discards queued
// and in-flight packets. Repeated calls with the same value do nothing.
func (p *Pipeline) EnableCapture(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capturing == on {
		return
	}
	p.capturing = on
	p.captureEpoch++
	p.seq = 0
	p.reorder.reset(p.captureEpoch)
	if n := p.outbound.Clear(); n > 0 {
		p.stats.staleDropped.Add(uint64(n))
	}
	p.logger.Debug("capture toggled", "on", on, "epoch", p.captureEpoch)
}

// EnablePlayback turns the downlink on or off. Turning it off discards
// queued packets and clears the sink.
func (p *Pipeline) EnablePlayback(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing == on {
		return
	}
	p.playing = on
	p.playEpoch++
	p.clearDecodeLocked()
	if !on {
		if err := p.deps.Sink.Clear(); err != nil {
			p.logger.Warn("clear sink", "error", err)
		}
	}
	p.logger.Debug("playback toggled", "on", on, "epoch", p.playEpoch)
}

// ResetDecoder drops queued downlink packets and resets the decoder before
// the next packet is decoded.
func (p *Pipeline) ResetDecoder() {
	p.mu.Lock()
	p.clearDecodeLocked()
	p.mu.Unlock()
	p.resetDecoder.Store(true)
}

func (p *Pipeline) clearDecodeLocked() {
	if n := p.decodeQ.Clear(); n > 0 {
		p.pending.Add(-int64(n))
		p.stats.staleDropped.Add(uint64(n))
	}
}

// Capturing reports whether the uplink is enabled.
func (p *Pipeline) Capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturing
}

// Playing reports whether the downlink is enabled.
func (p *Pipeline) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// HandleIncoming offers a received packet for playback. Packets are accepted
// only while playback is enabled; otherwise, or when the decode queue is full,
// the packet is dropped and false is returned.
func (p *Pipeline) HandleIncoming(pkt *protocol.AudioStreamPacket) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		p.stats.incomingDropped.Add(1)
		return false
	}
	p.pending.Add(1)
	if !p.decodeQ.Push(pkt, p.playEpoch) {
		p.pending.Add(-1)
		p.stats.decodeDropped.Add(1)
		return false
	}
	return true
}

// DecodeQueueLen returns the number of packets waiting for playback.
func (p *Pipeline) DecodeQueueLen() int {
	return p.decodeQ.Len()
}

// OutboundQueueLen returns the number of encoded packets waiting to be sent.
func (p *Pipeline) OutboundQueueLen() int {
	return p.outbound.Len()
}

// WaitPlaybackDrained blocks until every accepted packet has been played.
func (p *Pipeline) WaitPlaybackDrained(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for p.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return p.deps.Sink.Flush(ctx)
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	s := &p.stats
	return Stats{
		ChunksCaptured:  s.chunksCaptured.Load(),
		PacketsEncoded:  s.packetsEncoded.Load(),
		EncodeErrors:    s.encodeErrors.Load(),
		OutboundDropped: s.outboundDropped.Load(),
		PacketsSent:     s.packetsSent.Load(),
		SendErrors:      s.sendErrors.Load(),
		StaleDropped:    s.staleDropped.Load(),
		IncomingDropped: s.incomingDropped.Load(),
		DecodeDropped:   s.decodeDropped.Load(),
		PacketsDecoded:  s.packetsDecoded.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
	}
}

func (p *Pipeline) fail(err error) {
	p.logger.Error("audio hardware failure", "error", err)
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// captureLoop is the audio loop. It blocks only on the source and on space
// in the worker queue.
func (p *Pipeline) captureLoop(ctx context.Context) {
	defer p.wg.Done()
	frameSize := p.cfg.FrameSamples()
	buf := make([]int16, 0, frameSize*2)
	var bufEpoch uint64

	for {
		chunk, err := p.deps.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			p.fail(fmt.Errorf("%w: capture: %w", ErrHardwareFailure, err))
			return
		}
		p.stats.chunksCaptured.Add(1)
		samples := p.prepare(chunk)

		if p.deps.VAD != nil {
			speaking := p.deps.VAD.IsSpeech(samples)
			if p.edge.update(speaking) {
				p.mu.Lock()
				fn := p.onVAD
				p.mu.Unlock()
				if fn != nil {
					fn(speaking)
				}
			}
		}
		if ww := p.deps.WakeWord; ww != nil && ww.IsDetecting() {
			ww.Feed(samples)
		}

		p.mu.Lock()
		capturing, epoch := p.capturing, p.captureEpoch
		p.mu.Unlock()
		if !capturing {
			buf = buf[:0]
			continue
		}
		if epoch != bufEpoch {
			buf = buf[:0]
			bufEpoch = epoch
		}

		buf = append(buf, samples...)
		for len(buf) >= frameSize {
			frame := make([]int16, frameSize)
			copy(frame, buf[:frameSize])
			buf = append(buf[:0], buf[frameSize:]...)
			if err := p.submitFrame(ctx, epoch, frame); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("submit encode task", "error", err)
			}
		}
	}
}

// prepare converts a captured chunk to enhanced mono at the encode rate.
func (p *Pipeline) prepare(chunk audioio.AudioChunk) []int16 {
	chunk = chunk.Mono()
	samples := chunk.Samples
	if chunk.SampleRate != 0 && chunk.SampleRate != p.cfg.SampleRate {
		samples = audioio.Resample(samples, chunk.SampleRate, p.cfg.SampleRate)
	}
	if p.deps.Enhancer != nil {
		samples = p.deps.Enhancer.Process(samples)
	}
	return samples
}

func (p *Pipeline) submitFrame(ctx context.Context, epoch uint64, frame []int16) error {
	p.mu.Lock()
	if !p.capturing || p.captureEpoch != epoch {
		p.mu.Unlock()
		return nil
	}
	seq := p.seq
	p.seq++
	sessionID := p.sessionID
	p.mu.Unlock()

	frameMs := uint32(p.cfg.FrameDuration.Milliseconds())
	task := func(ctx context.Context) error {
		var enc Encoder
		select {
		case enc = <-p.encoders:
		case <-ctx.Done():
			p.reorder.complete(epoch, seq, nil)
			return nil
		}
		payload, err := enc.Encode(frame)
		p.encoders <- enc
		if err != nil {
			p.stats.encodeErrors.Add(1)
			p.reorder.complete(epoch, seq, nil)
			p.logger.Warn("encode failed", "seq", seq, "error", err)
			return nil
		}
		p.stats.packetsEncoded.Add(1)
		p.reorder.complete(epoch, seq, &protocol.AudioStreamPacket{
			SessionID:     sessionID,
			Sequence:      seq,
			Timestamp:     seq * frameMs,
			SampleRate:    p.cfg.SampleRate,
			FrameDuration: int(frameMs),
			Payload:       payload,
		})
		return nil
	}
	if err := p.deps.Pool.Submit(ctx, task); err != nil {
		p.reorder.complete(epoch, seq, nil)
		return err
	}
	return nil
}

func (p *Pipeline) enqueueOutbound(pkt *protocol.AudioStreamPacket, epoch uint64) {
	if !p.outbound.Push(pkt, epoch) {
		p.stats.outboundDropped.Add(1)
	}
}

func (p *Pipeline) senderLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		pkt, epoch, err := p.outbound.Pop(ctx)
		if err != nil {
			return
		}
		p.mu.Lock()
		live := p.capturing && epoch == p.captureEpoch
		sender := p.sender
		p.mu.Unlock()
		if !live || sender == nil {
			p.stats.staleDropped.Add(1)
			continue
		}
		if err := sender.SendAudio(pkt); err != nil {
			p.stats.sendErrors.Add(1)
			p.logger.Debug("send audio", "seq", pkt.Sequence, "error", err)
			continue
		}
		p.stats.packetsSent.Add(1)
	}
}

func (p *Pipeline) playbackLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		pkt, epoch, err := p.decodeQ.Pop(ctx)
		if err != nil {
			return
		}
		p.playOne(ctx, pkt, epoch)
		p.pending.Add(-1)
	}
}

func (p *Pipeline) playOne(ctx context.Context, pkt *protocol.AudioStreamPacket, epoch uint64) {
	p.mu.Lock()
	live := p.playing && epoch == p.playEpoch
	p.mu.Unlock()
	if !live {
		p.stats.staleDropped.Add(1)
		return
	}

	if p.resetDecoder.Swap(false) {
		if err := p.deps.Decoder.Reset(); err != nil {
			p.logger.Warn("reset decoder", "error", err)
		}
	}
	pcm, err := p.deps.Decoder.Decode(pkt.Payload)
	if err != nil {
		p.stats.decodeErrors.Add(1)
		p.logger.Debug("decode failed", "seq", pkt.Sequence, "error", err)
		return
	}

	sinkRate := p.deps.Sink.Config().SampleRate
	if rate := p.deps.Decoder.SampleRate(); rate != sinkRate && sinkRate > 0 {
		pcm = audioio.Resample(pcm, rate, sinkRate)
	}
	err = p.deps.Sink.Write(ctx, audioio.AudioChunk{Samples: pcm, SampleRate: sinkRate, Channels: 1})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.fail(fmt.Errorf("%w: playback: %w", ErrHardwareFailure, err))
		return
	}
	p.stats.packetsDecoded.Add(1)
}
