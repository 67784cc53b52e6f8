package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/internal/config"
	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/app"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/board"
	"github.com/teslashibe/go-voiceagent/pkg/codec/opus"
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/emotions"
	"github.com/teslashibe/go-voiceagent/pkg/ota"
	"github.com/teslashibe/go-voiceagent/pkg/settings"
	"github.com/teslashibe/go-voiceagent/pkg/state"
	"github.com/teslashibe/go-voiceagent/pkg/transport"
	"github.com/teslashibe/go-voiceagent/pkg/web"
)

var (
	serverURL     string
	dashboardPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the voice assistant",
	Long: `Run the voice assistant until interrupted.

Examples:
  # Simulated board with the dashboard on :8080
  voiceagent run --board sim --dashboard-port 8080

  # Real hardware against a self-hosted backend
  voiceagent run -c /etc/voiceagent.yaml --server wss://example.com/v1/`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("server") {
			cfg.Server.URL = serverURL
		}
		if cmd.Flags().Changed("dashboard-port") {
			cfg.Dashboard.Enabled = dashboardPort > 0
			cfg.Dashboard.Port = dashboardPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&serverURL, "server", "", "websocket endpoint of the backend")
	runCmd.Flags().IntVar(&dashboardPort, "dashboard-port", 0, "serve the dashboard on this port, 0 disables it")
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.L()
	logger.Info("voiceagent starting",
		"board", cfg.Device.Board,
		"version", cfg.Device.Version,
		"device_id", cfg.Device.DeviceID,
		"server", cfg.Server.URL,
	)

	src, err := audioio.NewSource(cfg.Capture(), logger)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer src.Close()
	sink, err := audioio.NewSink(cfg.Playback(), logger)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	defer sink.Close()

	b, err := board.Open(cfg.Device.Board, board.Options{Sink: sink, Logger: logger})
	if err != nil {
		return err
	}

	tr, err := transport.NewWebSocket(cfg.Transport(), logger)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	pcfg := cfg.Pipeline()
	dec, err := opus.NewDecoder(cfg.Audio.OutputSampleRate, 1)
	if err != nil {
		return err
	}
	encoders := func() (audio.Encoder, error) { return opus.NewEncoder(pcfg.SampleRate, 1) }

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	emo, err := emotions.NewBuiltInRegistry()
	if err != nil {
		return err
	}

	disp := display.NewMulti(display.NewLogDisplay(logger))
	deps := app.Deps{
		Transport: tr,
		Source:    src,
		Sink:      sink,
		Encoders:  encoders,
		Decoder:   dec,
		Board:     b,
		Display:   disp,
		Settings:  store,
		Emotions:  emo,
		Logger:    logger,
	}
	if cfg.OTA.URL != "" {
		deps.OTA = ota.New(cfg.OTA, cfg.Identity(), logger)
	}

	a, err := app.New(cfg, deps)
	if err != nil {
		return err
	}

	if cfg.Dashboard.Enabled {
		dash := web.NewServer(cfg.Dashboard, a.Tools(), emo, logger)
		dash.OnWake(a.ToggleChat)
		disp.Add(dash)
		a.Machine().Subscribe(func(from, to state.DeviceState) {
			dash.OnStateChange(from, to)
			if to == state.Listening {
				dash.SetSession(tr.SessionID())
			}
		})
		dash.Start(ctx)
	}

	return a.Run(ctx)
}
