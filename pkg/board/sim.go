package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
)

// SimName is the name the simulated board registers under.
const SimName = "sim"

func init() {
	Register(SimName, func(opts Options) (Board, error) {
		return NewSim(opts), nil
	})
}

// Themes supported by the simulated screen.
var simThemes = map[string]bool{"light": true, "dark": true}

// Sim is a board without real peripherals. Volume is forwarded to the sink
// when it supports software volume; everything else is kept in memory.
type Sim struct {
	logger *slog.Logger
	sink   audioio.VolumeSink

	speakerMu sync.Mutex
	volume    int

	screenMu   sync.Mutex
	brightness int
	theme      string

	ledMu    sync.Mutex
	ledOn    bool
	ledColor string

	rebootMu sync.Mutex
	reboots  int
	onReboot func()
}

// NewSim creates a simulated board.
func NewSim(opts Options) *Sim {
	s := &Sim{
		logger:     log.Or(opts.Logger, "board"),
		volume:     audioio.DefaultVolume,
		brightness: 75,
		theme:      "light",
		ledColor:   "white",
	}
	if vs, ok := opts.Sink.(audioio.VolumeSink); ok {
		s.sink = vs
		s.volume = vs.Volume()
	}
	return s
}

func (s *Sim) Name() string { return SimName }

func (s *Sim) SetVolume(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d", ErrOutOfRange, percent)
	}
	s.speakerMu.Lock()
	defer s.speakerMu.Unlock()
	s.volume = percent
	if s.sink != nil {
		s.sink.SetVolume(percent)
	}
	s.logger.Info("volume set", "volume", percent)
	return nil
}

func (s *Sim) Volume() int {
	s.speakerMu.Lock()
	defer s.speakerMu.Unlock()
	return s.volume
}

func (s *Sim) SetBrightness(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: brightness %d", ErrOutOfRange, percent)
	}
	s.screenMu.Lock()
	s.brightness = percent
	s.screenMu.Unlock()
	return nil
}

func (s *Sim) Brightness() int {
	s.screenMu.Lock()
	defer s.screenMu.Unlock()
	return s.brightness
}

func (s *Sim) SetTheme(theme string) error {
	if !simThemes[theme] {
		return fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}
	s.screenMu.Lock()
	s.theme = theme
	s.screenMu.Unlock()
	return nil
}

func (s *Sim) Theme() string {
	s.screenMu.Lock()
	defer s.screenMu.Unlock()
	return s.theme
}

// OnReboot sets what a reboot does. Without it a reboot is only counted.
func (s *Sim) OnReboot(fn func()) {
	s.rebootMu.Lock()
	s.onReboot = fn
	s.rebootMu.Unlock()
}

func (s *Sim) Reboot(ctx context.Context) error {
	s.rebootMu.Lock()
	s.reboots++
	fn := s.onReboot
	s.rebootMu.Unlock()
	s.logger.Warn("reboot requested")
	if fn != nil {
		fn()
	}
	return nil
}

// Reboots returns how many times Reboot was called.
func (s *Sim) Reboots() int {
	s.rebootMu.Lock()
	defer s.rebootMu.Unlock()
	return s.reboots
}

// LED returns the simulated status light.
func (s *Sim) LED() (on bool, color string) {
	s.ledMu.Lock()
	defer s.ledMu.Unlock()
	return s.ledOn, s.ledColor
}

// RegisterTools adds the status light tool.
func (s *Sim) RegisterTools(r mcp.Registrar) error {
	return r.RegisterTool("self.led.set",
		"Turn the status light on or off, optionally with a color name.",
		mcp.MustPropertyList(
			mcp.BoolProperty("on"),
			mcp.StringProperty("color", mcp.WithDefault("white")),
		),
		func(ctx context.Context, args mcp.Values) (any, error) {
			s.ledMu.Lock()
			s.ledOn = args.Bool("on")
			s.ledColor = args.String("color")
			s.ledMu.Unlock()
			return true, nil
		})
}

var (
	_ Board        = (*Sim)(nil)
	_ ToolProvider = (*Sim)(nil)
)
