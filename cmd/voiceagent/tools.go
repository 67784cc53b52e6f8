package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/board"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tools the device offers",
	Long: `Print the tools/list result for the selected board, as the backend
would receive it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := board.Open(cfg.Device.Board, board.Options{
			Sink:   audioio.NewMockSink(cfg.Playback(), log.Discard()),
			Logger: log.Discard(),
		})
		if err != nil {
			return err
		}

		reg := mcp.NewRegistry()
		if err := board.RegisterTools(reg, b, board.ToolOptions{}); err != nil {
			return err
		}
		srv := mcp.NewServer(reg, worker.New(cfg.ToolWorkers(), log.Discard()), mcp.ServerInfo{
			Name:    cfg.Device.Board,
			Version: cfg.Device.Version,
		}, log.Discard())

		out, err := json.MarshalIndent(srv.List(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
