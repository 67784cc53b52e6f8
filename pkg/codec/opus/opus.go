// Package opus adapts libopus (via gopkg.in/hraban/opus.v2) to the audio
// pipeline's Encoder and Decoder interfaces. It requires cgo.
package opus

import (
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

// maxPacketSize bounds one encoded frame.
const maxPacketSize = 4000

// maxFrameSamples is 120 ms at 48 kHz, the largest Opus frame.
const maxFrameSamples = 5760

// Encoder encodes PCM16 frames. Each Encoder carries its own codec state; the
// pipeline keeps one per encode worker.
type Encoder struct {
	mu  sync.Mutex
	enc *opus.Encoder
	buf []byte
}

// NewEncoder creates a VoIP-tuned encoder.
func NewEncoder(sampleRate, channels int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus: new encoder: %w", err)
	}
	return &Encoder{enc: enc, buf: make([]byte, maxPacketSize)}, nil
}

// Encode compresses one frame. The frame must be a valid Opus duration
// (2.5, 5, 10, 20, 40 or 60 ms).
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// Decoder decodes Opus packets in order. Opus decoding is stateful, so one
// Decoder must only ever be fed a single stream.
type Decoder struct {
	mu         sync.Mutex
	dec        *opus.Decoder
	sampleRate int
	channels   int
	pcm        []int16
}

// NewDecoder creates a decoder producing PCM at sampleRate.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: new decoder: %w", err)
	}
	return &Decoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        make([]int16, maxFrameSamples*channels),
	}, nil
}

// Decode returns the PCM for one packet.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	out := make([]int16, n*d.channels)
	copy(out, d.pcm[:n*d.channels])
	return out, nil
}

// Reset discards decoder state by creating a fresh libopus decoder.
func (d *Decoder) Reset() error {
	dec, err := opus.NewDecoder(d.sampleRate, d.channels)
	if err != nil {
		return fmt.Errorf("opus: reset decoder: %w", err)
	}
	d.mu.Lock()
	d.dec = dec
	d.mu.Unlock()
	return nil
}

// SampleRate returns the decoder's output rate.
func (d *Decoder) SampleRate() int {
	return d.sampleRate
}
