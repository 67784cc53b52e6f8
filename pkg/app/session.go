package app

import (
	"context"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/state"
)

// startConnector runs at most one connection loop at a time.
func (a *App) startConnector() {
	if a.connecting.CompareAndSwap(false, true) {
		go a.connector()
	}
}

func (a *App) connector() {
	for {
		a.connectLoop()
		a.connecting.Store(false)
		// Connecting may have been re-entered while the loop was exiting.
		if a.ctx.Err() != nil || !a.machine.Is(state.Connecting) || !a.connecting.CompareAndSwap(false, true) {
			return
		}
	}
}

// connectLoop opens the session with exponential backoff. It gives up when
// the device leaves Connecting or the attempts run out.
func (a *App) connectLoop() {
	rc := a.cfg.Reconnect
	backoff := rc.InitialBackoff
	for attempt := 1; ; attempt++ {
		if !a.machine.Is(state.Connecting) {
			return
		}
		err := a.transport.Open(a.ctx)
		if a.ctx.Err() != nil {
			return
		}
		if err == nil {
			if a.machine.Is(state.Connecting) {
				a.sessionReady()
			}
			return
		}
		a.logger.Warn("connect failed", "attempt", attempt, "kind", Classify(err), "error", err)
		if attempt >= rc.MaxAttempts {
			a.connectExhausted(err)
			return
		}

		a.reconnects.Add(1)
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > rc.MaxBackoff {
			backoff = rc.MaxBackoff
		}
	}
}

func (a *App) connectExhausted(err error) {
	a.display.SetChatMessage(display.RoleSystem, "unable to reach the server")
	if a.cfg.Reconnect.FatalOnExhaustion {
		a.machine.Fail(err)
		return
	}
	if err := a.machine.SetState(state.Idle); err != nil {
		a.logger.Debug("return to idle", "error", err)
	}
}

// sessionReady reports a pending wake word and starts listening.
func (a *App) sessionReady() {
	a.mu.Lock()
	word := a.pendingWake
	a.pendingWake = ""
	a.mu.Unlock()
	if word != "" {
		if err := a.transport.SendText(protocol.NewWakeWordDetected("", word)); err != nil {
			a.logger.Warn("send wake word", "error", err)
		}
	}
	if err := a.machine.SetState(state.Listening); err != nil {
		a.logger.Warn("start listening", "error", err)
	}
}

func (a *App) onConnected(sessionID string) {
	a.pipeline.SetSession(sessionID)
	a.logger.Info("session opened", "session_id", sessionID)
}

// onDisconnected reacts to the end of a session. A clean close ends the
// turn; a failure during a turn reconnects.
func (a *App) onDisconnected(err error) {
	a.pipeline.SetSession("")
	if a.ctx.Err() != nil {
		return
	}
	cur := a.machine.CurrentState()
	if !cur.Conversational() {
		a.logger.Info("session closed", "state", cur, "error", err)
		return
	}
	if err == nil {
		a.logger.Info("session closed")
		if serr := a.machine.SetState(state.Idle); serr != nil {
			a.logger.Debug("return to idle", "error", serr)
		}
		return
	}
	a.logger.Warn("session lost, reconnecting", "kind", Classify(err), "error", err)
	if serr := a.machine.SetState(state.Connecting); serr != nil {
		a.logger.Debug("reconnect", "error", serr)
	}
}

// onRoutingError tells the backend which message was rejected. Routing
// failures other than malformed input stay local.
func (a *App) onRoutingError(err error) {
	kind := Classify(err)
	a.logger.Debug("inbound message dropped", "kind", kind, "error", err)
	if kind != KindMalformedMessage || !a.transport.IsOpen() {
		return
	}
	if serr := a.transport.SendText(protocol.NewMalformedReport(a.transport.SessionID(), err)); serr != nil {
		a.logger.Warn("report malformed message", "error", serr)
	}
}

func (a *App) onAudioError(err error) {
	if Classify(err).Fatal() {
		a.machine.Fail(err)
		return
	}
	a.logger.Warn("audio error", "error", err)
}

// Router handler.

func (a *App) OnSpeakingStarted() {
	if err := a.machine.SetState(state.Speaking); err != nil {
		a.logger.Debug("tts start ignored", "error", err)
	}
}

func (a *App) OnSpeakingStopped() {
	if !a.machine.Is(state.Speaking) {
		return
	}
	go a.finishSpeaking(a.speakGen.Load())
}

// finishSpeaking lets queued audio play out, then ends the reply. gen
// identifies the reply; a newer one cancels this.
func (a *App) finishSpeaking(gen uint64) {
	ctx, cancel := context.WithTimeout(a.ctx, drainTimeout)
	defer cancel()
	if err := a.pipeline.WaitPlaybackDrained(ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Warn("playback drain", "error", err)
	}
	if gen != a.speakGen.Load() || !a.machine.Is(state.Speaking) {
		return
	}
	next := state.Idle
	if a.mode() != protocol.ModeManual && a.transport.IsOpen() {
		next = state.Listening
	}
	if err := a.machine.SetState(next); err != nil {
		a.logger.Debug("end of reply", "error", err)
	}
}

func (a *App) OnGoodbye(sessionID string) {
	a.logger.Info("server said goodbye", "session_id", sessionID)
	// Close waits for the read loop, which is the caller.
	go func() {
		if err := a.transport.Close(); err != nil {
			a.logger.Warn("close transport", "error", err)
		}
		if a.machine.CurrentState().Conversational() {
			_ = a.machine.SetState(state.Idle)
		}
	}()
}

func (a *App) OnSystemCommand(command string) {
	switch command {
	case "reboot":
		go func() {
			if err := a.board.Reboot(a.ctx); err != nil {
				a.logger.Error("reboot", "error", err)
			}
		}()
	default:
		a.logger.Warn("unknown system command", "command", command)
	}
}

func (a *App) OnAlert(alert protocol.AlertEvent) {
	if alert.Status != "" {
		a.setStatus(alert.Status)
	}
	if alert.Message != "" {
		a.display.SetChatMessage(display.RoleSystem, alert.Message)
	}
	if alert.Emotion != "" {
		a.setEmotion(alert.Emotion)
	}
}
