package audio

import (
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/audioio"
)

// Enhancer cleans up captured audio before VAD and encoding. Hardware with
// its own AEC or noise suppression can supply an implementation that simply
// returns its input.
type Enhancer interface {
	Process(samples []int16) []int16
}

// EnhancerFunc adapts a function to Enhancer.
type EnhancerFunc func([]int16) []int16

func (f EnhancerFunc) Process(samples []int16) []int16 { return f(samples) }

// NoiseGate removes DC offset and mutes frames whose energy stays below Floor.
type NoiseGate struct {
	// Floor is the normalized RMS under which a frame is muted.
	Floor float64

	mu      sync.Mutex
	prevIn  float64
	prevOut float64
}

// NewNoiseGate creates a gate with the given floor.
func NewNoiseGate(floor float64) *NoiseGate {
	return &NoiseGate{Floor: floor}
}

// Process applies a one-pole DC blocker then the gate.
func (g *NoiseGate) Process(samples []int16) []int16 {
	g.mu.Lock()
	defer g.mu.Unlock()

	const r = 0.995
	out := make([]int16, len(samples))
	for i, s := range samples {
		x := float64(s)
		y := x - g.prevIn + r*g.prevOut
		g.prevIn, g.prevOut = x, y
		out[i] = clamp16(y)
	}
	if audioio.CalculateRMS(out) < g.Floor {
		clear(out)
	}
	return out
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// VAD decides whether a frame contains speech.
type VAD interface {
	IsSpeech(samples []int16) bool
}

// EnergyVAD is an RMS threshold detector smoothed by majority vote over the
// last Window frames.
type EnergyVAD struct {
	Threshold float64
	Window    int

	mu  sync.Mutex
	win []bool
}

// NewEnergyVAD creates a detector.
func NewEnergyVAD(threshold float64, window int) *EnergyVAD {
	if window < 1 {
		window = 1
	}
	return &EnergyVAD{Threshold: threshold, Window: window}
}

// IsSpeech updates the window with this frame and returns the smoothed decision.
func (v *EnergyVAD) IsSpeech(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.win = append(v.win, audioio.CalculateRMS(samples) >= v.Threshold)
	if len(v.win) > v.Window {
		v.win = v.win[len(v.win)-v.Window:]
	}
	n := 0
	for _, b := range v.win {
		if b {
			n++
		}
	}
	return n*2 > len(v.win)
}

// vadEdge turns a level signal into deduplicated change notifications.
type vadEdge struct {
	mu      sync.Mutex
	current bool
}

// update reports whether speech differs from the previous value.
func (e *vadEdge) update(speech bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if speech == e.current {
		return false
	}
	e.current = speech
	return true
}

func (e *vadEdge) reset() {
	e.mu.Lock()
	e.current = false
	e.mu.Unlock()
}
