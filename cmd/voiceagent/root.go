package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/internal/config"
	"github.com/teslashibe/go-voiceagent/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "voiceagent",
	Short: "On-device voice assistant",
	Long: `voiceagent connects a microphone and speaker to an AI backend over a
websocket session and exposes the device's controls as MCP tools.`,
	SilenceUsage: true,
}

var (
	configPath string
	envFile    string
	logLevel   string
	boardName  string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file, ignored when missing")
	pf.StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	pf.StringVar(&boardName, "board", "", "override board name")

	rootCmd.AddCommand(runCmd, toolsCmd)
}

// loadConfig applies the config file, env and flag overrides, then sets up
// logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("board") {
		cfg.Device.Board = boardName
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
