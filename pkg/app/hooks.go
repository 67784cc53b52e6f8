package app

import (
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/state"
)

// Entry hooks run with the transition lock held. Each one leaves the
// pipeline and detector in the same configuration however often it runs.
func (a *App) registerHooks() {
	m := a.machine
	m.OnEnter(state.Starting, func(state.DeviceState) { a.setStatus("starting") })
	m.OnEnter(state.Idle, a.enterIdle)
	m.OnEnter(state.Connecting, a.enterConnecting)
	m.OnEnter(state.Listening, a.enterListening)
	m.OnEnter(state.Speaking, a.enterSpeaking)
	m.OnEnter(state.FatalError, a.enterFatal)
	for _, s := range []state.DeviceState{state.WifiConfiguring, state.Upgrading, state.Activating, state.AudioTesting} {
		s := s
		m.OnEnter(s, func(state.DeviceState) { a.enterAdministrative(s) })
	}
}

func (a *App) quiet() {
	a.wake.StopDetection()
	a.pipeline.EnableCapture(false)
	a.pipeline.EnablePlayback(false)
}

func (a *App) enterIdle(prev state.DeviceState) {
	a.pipeline.EnableCapture(false)
	a.pipeline.EnablePlayback(false)
	a.pipeline.ResetDecoder()
	a.wake.StartDetection()
	a.setStatus("standby")
	a.setEmotion("neutral")
}

func (a *App) enterConnecting(prev state.DeviceState) {
	a.wake.StopDetection()
	a.setStatus("connecting")
	a.startConnector()
}

func (a *App) enterListening(prev state.DeviceState) {
	a.wake.StopDetection()
	a.pipeline.EnablePlayback(false)
	mode := a.mode()
	// listen/start must reach the server before the first audio packet.
	if err := a.transport.SendStartListening(mode); err != nil {
		a.logger.Warn("send listen start", "mode", mode, "error", err)
	}
	a.pipeline.EnableCapture(true)
	a.setStatus("listening")
}

func (a *App) enterSpeaking(prev state.DeviceState) {
	a.wake.StopDetection()
	a.pipeline.EnableCapture(false)
	a.pipeline.ResetDecoder()
	a.pipeline.EnablePlayback(true)
	a.speakGen.Add(1)
	a.setStatus("speaking")
}

func (a *App) enterFatal(prev state.DeviceState) {
	a.quiet()
	msg := "error"
	if err := a.machine.LastError(); err != nil {
		msg = "error: " + err.Error()
		a.display.SetChatMessage(display.RoleSystem, err.Error())
	}
	a.setStatus(msg)
	a.setEmotion("sad")
}

func (a *App) enterAdministrative(s state.DeviceState) {
	a.quiet()
	a.setStatus(s.String())
}
