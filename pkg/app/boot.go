package app

import (
	"context"

	"github.com/teslashibe/go-voiceagent/pkg/board"
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/state"
)

// boot restores settings, runs the version check and settles in Idle.
func (a *App) boot(ctx context.Context) {
	a.applySettings()
	if a.ota != nil && a.ota.Enabled() {
		if done := a.checkVersion(ctx); done {
			return
		}
	}
	if ctx.Err() != nil || a.machine.Is(state.FatalError) {
		return
	}
	if err := a.machine.SetState(state.Idle); err != nil {
		a.logger.Warn("enter idle", "error", err)
	}
}

func (a *App) applySettings() {
	audio := a.settings.Namespace(nsAudio)
	disp := a.settings.Namespace(nsDisplay)
	if v := audio.Int(keyVolume, -1); v >= 0 {
		if err := a.board.SetVolume(v); err != nil {
			a.logger.Warn("restore volume", "error", err)
		}
	}
	if v := disp.Int(keyBrightness, -1); v >= 0 {
		if err := a.board.SetBrightness(v); err != nil {
			a.logger.Warn("restore brightness", "error", err)
		}
	}
	if v := disp.String(keyTheme, ""); v != "" {
		if err := a.board.SetTheme(v); err != nil {
			a.logger.Warn("restore theme", "error", err)
		}
	}
}

// checkVersion activates the device if needed and installs newer firmware
// when the board can. It returns true when the board took over to upgrade.
func (a *App) checkVersion(ctx context.Context) bool {
	res, err := a.ota.Check(ctx)
	if err != nil {
		a.logger.Warn("version check failed", "error", err)
		return false
	}

	if res.NeedsActivation() {
		act := res.Activation
		_ = a.machine.SetState(state.Activating)
		msg := act.Message
		if msg == "" {
			msg = "activation code " + act.Code
		}
		a.display.SetChatMessage(display.RoleSystem, msg)
		if err := a.ota.Activate(ctx, act); err != nil {
			a.logger.Warn("activation failed", "error", err)
		}
	}

	if !res.HasNewVersion(a.cfg.Device.Version) {
		return false
	}
	up, ok := a.board.(board.Upgrader)
	if !ok {
		a.logger.Info("newer firmware available", "version", res.Firmware.Version, "board", a.board.Name())
		return false
	}
	_ = a.machine.SetState(state.Upgrading)
	a.display.SetChatMessage(display.RoleSystem, "upgrading to "+res.Firmware.Version)
	if err := up.Upgrade(ctx, res.Firmware.URL); err != nil {
		a.logger.Error("upgrade failed", "error", err)
		return false
	}
	return true
}
