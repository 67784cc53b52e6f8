// Package app is the device orchestrator. It owns the state machine and
// wires the audio pipeline, the session transport, the message router and
// the tool dispatcher together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/config"
	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/board"
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/emotions"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
	"github.com/teslashibe/go-voiceagent/pkg/ota"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/router"
	"github.com/teslashibe/go-voiceagent/pkg/settings"
	"github.com/teslashibe/go-voiceagent/pkg/state"
	"github.com/teslashibe/go-voiceagent/pkg/transport"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

// Updater performs the startup version check. *ota.Client satisfies it.
type Updater interface {
	Enabled() bool
	Check(ctx context.Context) (*ota.CheckResult, error)
	Activate(ctx context.Context, act *ota.Activation) error
}

// Deps are the collaborators of the App. Transport, Source, Sink, Encoders,
// Decoder and Board are required.
type Deps struct {
	Transport transport.Transport
	Source    audioio.Source
	Sink      audioio.Sink
	Encoders  audio.EncoderFactory
	Decoder   audio.Decoder
	Board     board.Board

	// WakeWord defaults to a ManualWakeWord fired by Wake.
	WakeWord audio.WakeWord
	Display  display.Display
	OTA      Updater
	Settings *settings.Store
	Emotions *emotions.Registry
	Logger   *slog.Logger
}

// Settings namespaces and keys.
const (
	nsAudio       = "audio"
	nsDisplay     = "display"
	keyVolume     = "volume"
	keyBrightness = "brightness"
	keyTheme      = "theme"
)

// drainTimeout bounds how long the end of a reply waits for queued audio.
const drainTimeout = 30 * time.Second

// App is the running device.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	machine   *state.Machine
	encoders  *worker.Pool
	toolPool  *worker.Pool
	pipeline  *audio.Pipeline
	transport transport.Transport
	registry  *mcp.Registry
	tools     *mcp.Server
	router    *router.Router
	display   display.Display
	wake      audio.WakeWord
	board     board.Board
	ota       Updater
	settings  *settings.Store
	emotions  *emotions.Registry

	ctx  context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	turnMode    protocol.ListeningMode
	pendingWake string

	connecting  atomic.Bool
	speakGen    atomic.Uint64
	pipelineUp  atomic.Bool
	reconnects  atomic.Uint64
}

// New wires an App. Nothing runs until Run.
func New(cfg config.Config, deps Deps) (*App, error) {
	switch {
	case deps.Transport == nil:
		return nil, fmt.Errorf("app: %w: transport", audio.ErrMissingDependency)
	case deps.Board == nil:
		return nil, fmt.Errorf("app: %w: board", audio.ErrMissingDependency)
	}
	logger := log.Or(deps.Logger, "app")
	if deps.WakeWord == nil {
		deps.WakeWord = audio.NewManualWakeWord()
	}
	if deps.Display == nil {
		deps.Display = display.NewLogDisplay(deps.Logger)
	}
	if deps.Settings == nil {
		deps.Settings = settings.Memory()
	}
	if deps.Emotions == nil {
		reg, err := emotions.NewBuiltInRegistry()
		if err != nil {
			return nil, fmt.Errorf("app: load emotions: %w", err)
		}
		deps.Emotions = reg
	}

	ctx, stop := context.WithCancel(context.Background())
	a := &App{
		cfg:         cfg,
		logger:      logger,
		machine:     state.NewMachine(deps.Logger),
		encoders:    worker.New(cfg.EncodeWorkers(), deps.Logger),
		toolPool:    worker.New(cfg.ToolWorkers(), deps.Logger),
		transport:   deps.Transport,
		registry:    mcp.NewRegistry(),
		display:     deps.Display,
		wake:        deps.WakeWord,
		board:       deps.Board,
		ota:         deps.OTA,
		settings:    deps.Settings,
		emotions:    deps.Emotions,
		ctx:         ctx,
		stop:        stop,
		turnMode:    cfg.Mode(),
	}

	pcfg := cfg.Pipeline()
	pl, err := audio.New(pcfg, audio.Deps{
		Source:   deps.Source,
		Sink:     deps.Sink,
		Pool:     a.encoders,
		Encoders: deps.Encoders,
		Decoder:  deps.Decoder,
		Enhancer: audio.NewNoiseGate(pcfg.NoiseFloor),
		VAD:      audio.NewEnergyVAD(pcfg.VADThreshold, pcfg.VADWindow),
		WakeWord: deps.WakeWord,
		Logger:   deps.Logger,
	})
	if err != nil {
		stop()
		return nil, err
	}
	a.pipeline = pl

	err = board.RegisterTools(a.registry, a.board, board.ToolOptions{
		DeviceState: func() string { return a.machine.CurrentState().String() },
		OnChange:    a.persistSetting,
		RebootDelay: time.Second,
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("app: register tools: %w", err)
	}
	a.tools = mcp.NewServer(a.registry, a.toolPool, mcp.ServerInfo{Name: cfg.Device.Board, Version: cfg.Device.Version}, deps.Logger)
	a.router = router.New(ctx, a, a.display, a.tools, deps.Logger)

	a.wire()
	a.registerHooks()
	return a, nil
}

func (a *App) wire() {
	a.tools.OnResponse(func(payload []byte) error {
		return a.transport.SendText(protocol.NewMCPMessage("", payload))
	})
	a.router.OnRoutingError(a.onRoutingError)

	a.transport.OnIncomingJSON(func(raw []byte) { _ = a.router.Route(raw) })
	a.transport.OnIncomingAudio(func(pkt *protocol.AudioStreamPacket) { a.pipeline.HandleIncoming(pkt) })
	a.transport.OnConnected(a.onConnected)
	a.transport.OnDisconnected(a.onDisconnected)

	a.pipeline.SetSender(a.transport)
	a.pipeline.OnError(a.onAudioError)
	a.pipeline.OnVoiceActivity(func(speaking bool) {
		a.logger.Debug("voice activity", "speaking", speaking)
	})

	a.encoders.OnError(func(err error) {
		a.logger.Warn("encode task failed", "error", err)
	})
	a.toolPool.OnError(func(err error) {
		a.logger.Warn("tool task failed", "error", err)
	})
	a.wake.OnDetected(a.handoffWake)
}

// Run boots the device and blocks until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			a.stop()
		case <-a.ctx.Done():
		}
	}()

	a.encoders.Start(a.ctx)
	a.toolPool.Start(a.ctx)
	if err := a.machine.SetState(state.Starting); err != nil {
		a.stop()
		return err
	}
	a.startAndBoot()

	<-a.ctx.Done()
	a.shutdown()
	return nil
}

// Close stops a running App.
func (a *App) Close() {
	a.stop()
}

func (a *App) startAndBoot() {
	if !a.pipelineUp.Load() {
		if err := a.pipeline.Start(a.ctx); err != nil && !errors.Is(err, audio.ErrAlreadyStarted) {
			a.machine.Fail(err)
			return
		}
		a.pipelineUp.Store(true)
	}
	a.boot(a.ctx)
}

func (a *App) shutdown() {
	a.logger.Info("shutting down")
	if err := a.transport.Close(); err != nil {
		a.logger.Warn("close transport", "error", err)
	}
	if err := a.pipeline.Stop(); err != nil {
		a.logger.Warn("stop audio", "error", err)
	}
	a.encoders.Close()
	a.toolPool.Close()
}

// Restart leaves FatalError and boots again.
func (a *App) Restart() {
	a.machine.Restart()
	go a.startAndBoot()
}

// State returns the current device state.
func (a *App) State() state.DeviceState {
	return a.machine.CurrentState()
}

// Machine exposes the state machine so displays can subscribe to it.
func (a *App) Machine() *state.Machine {
	return a.machine
}

// Tools returns the tool dispatcher.
func (a *App) Tools() *mcp.Server {
	return a.tools
}

// Registry returns the tool registry for registering extra tools before Run.
func (a *App) Registry() *mcp.Registry {
	return a.registry
}

// AudioStats returns the pipeline counters.
func (a *App) AudioStats() audio.Stats {
	return a.pipeline.Stats()
}

// Reconnects returns how many reconnect attempts were made.
func (a *App) Reconnects() uint64 {
	return a.reconnects.Load()
}

var _ router.Handler = (*App)(nil)

func (a *App) persistSetting(key string, v any) {
	ns := nsDisplay
	if key == keyVolume {
		ns = nsAudio
	}
	if err := a.settings.Namespace(ns).Set(key, v); err != nil {
		a.logger.Warn("persist setting", "key", key, "error", err)
	}
}

func (a *App) setStatus(s string) {
	a.display.SetStatus(s)
}

func (a *App) setEmotion(name string) {
	if e := a.emotions.Resolve(name); e != nil {
		name = e.Name
	}
	a.display.SetEmotion(name)
}
