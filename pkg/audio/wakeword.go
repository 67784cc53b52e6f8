package audio

import "sync"

// WakeWord is a local trigger-phrase detector. The acoustic model lives
// behind this interface; the pipeline only feeds it frames while detecting.
type WakeWord interface {
	StartDetection()
	StopDetection()
	IsDetecting() bool
	Feed(samples []int16)
	OnDetected(fn func(word string))
}

// ManualWakeWord is a detector fired by Trigger, used for buttons, the
// dashboard and tests. Like an acoustic detector it ignores triggers while
// stopped and stops itself on a match.
type ManualWakeWord struct {
	mu        sync.Mutex
	detecting bool
	starts    int
	fed       int
	onDetect  func(string)
}

// NewManualWakeWord creates a stopped detector.
func NewManualWakeWord() *ManualWakeWord {
	return &ManualWakeWord{}
}

// StartDetection arms the detector. Arming an armed detector is a no-op.
func (w *ManualWakeWord) StartDetection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detecting {
		return
	}
	w.detecting = true
	w.starts++
}

// StopDetection disarms the detector.
func (w *ManualWakeWord) StopDetection() {
	w.mu.Lock()
	w.detecting = false
	w.mu.Unlock()
}

// IsDetecting reports whether the detector is armed.
func (w *ManualWakeWord) IsDetecting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detecting
}

// Feed counts frames; there is no model to run.
func (w *ManualWakeWord) Feed(samples []int16) {
	w.mu.Lock()
	w.fed++
	w.mu.Unlock()
}

// OnDetected sets the match callback.
func (w *ManualWakeWord) OnDetected(fn func(word string)) {
	w.mu.Lock()
	w.onDetect = fn
	w.mu.Unlock()
}

// Trigger simulates a match. It returns false when the detector is stopped.
func (w *ManualWakeWord) Trigger(word string) bool {
	w.mu.Lock()
	if !w.detecting {
		w.mu.Unlock()
		return false
	}
	w.detecting = false
	fn := w.onDetect
	w.mu.Unlock()
	if fn != nil {
		fn(word)
	}
	return true
}

// Starts returns how many times detection was armed from a stopped state.
func (w *ManualWakeWord) Starts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.starts
}

// Fed returns how many frames were fed.
func (w *ManualWakeWord) Fed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fed
}
