package app

import (
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/state"
)

// triggerer is a detector that can be fired by hand.
type triggerer interface {
	Trigger(word string) bool
}

func (a *App) mode() protocol.ListeningMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turnMode
}

func (a *App) setMode(m protocol.ListeningMode) {
	a.mu.Lock()
	a.turnMode = m
	a.mu.Unlock()
}

// Wake fires the wake word as if it had been heard. It returns false when
// the detector is not armed, that is outside Idle.
func (a *App) Wake(word string) bool {
	if t, ok := a.wake.(triggerer); ok {
		return t.Trigger(word)
	}
	if !a.machine.Is(state.Idle) || !a.wake.IsDetecting() {
		return false
	}
	a.wake.StopDetection()
	a.handoffWake(word)
	return true
}

// handoffWake is the detector callback. Detectors may fire from inside Feed
// on the capture loop, and starting a turn can block on the network.
func (a *App) handoffWake(word string) {
	go a.onWakeWord(word)
}

// onWakeWord starts a turn once the detector has disarmed itself.
func (a *App) onWakeWord(word string) {
	if a.ctx.Err() != nil || !a.machine.Is(state.Idle) {
		return
	}
	a.logger.Info("wake word detected", "word", word)
	a.mu.Lock()
	a.pendingWake = word
	a.turnMode = a.cfg.Mode()
	a.mu.Unlock()
	a.beginTurn()
}

// beginTurn listens on the open session or connects first.
func (a *App) beginTurn() {
	if a.transport.IsOpen() {
		a.sessionReady()
		return
	}
	if err := a.machine.SetState(state.Connecting); err != nil {
		a.logger.Warn("connect", "error", err)
	}
}

// ToggleChat is the single-button trigger: it starts a turn from Idle,
// interrupts the reply while Speaking and ends the session while Listening.
func (a *App) ToggleChat() {
	switch a.machine.CurrentState() {
	case state.Idle:
		a.setMode(a.cfg.Mode())
		a.beginTurn()
	case state.Connecting:
		_ = a.machine.SetState(state.Idle)
	case state.Speaking:
		a.abortSpeaking("")
	case state.Listening:
		go func() {
			if err := a.transport.Close(); err != nil {
				a.logger.Warn("close transport", "error", err)
			}
			_ = a.machine.SetState(state.Idle)
		}()
	}
}

// StartListening begins a push-to-talk turn, interrupting any reply.
func (a *App) StartListening() {
	switch a.machine.CurrentState() {
	case state.Idle:
		a.setMode(protocol.ModeManual)
		a.beginTurn()
	case state.Speaking:
		a.abortSpeaking("")
		a.setMode(protocol.ModeManual)
		_ = a.machine.SetState(state.Listening)
	}
}

// StopListening ends a push-to-talk turn. The device keeps the Listening
// state, with capture off, until the reply starts.
func (a *App) StopListening() {
	if !a.machine.Is(state.Listening) {
		return
	}
	if err := a.transport.SendText(protocol.NewListenStop("")); err != nil {
		a.logger.Warn("send listen stop", "error", err)
	}
	a.pipeline.EnableCapture(false)
}

func (a *App) abortSpeaking(reason string) {
	if err := a.transport.SendText(protocol.NewAbort("", reason)); err != nil {
		a.logger.Warn("send abort", "error", err)
	}
}
