package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/capreel/capreel/internal/server"
	"github.com/capreel/capreel/internal/session"
	"github.com/capreel/capreel/internal/state"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control server for remote recording",
	Long: `Start the Capreel control server to drive recording over HTTP.
This allows starting and stopping recordings from a browser or any
device on the same network; /ws streams live state updates.

The server will display the local network URL for easy access.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port != "" {
			cfg.Server.Port = port
		}

		store := state.NewStore()
		controller := session.New(cfg, store, nil)
		if err := controller.Init(); err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}

		srv := server.New(controller, store, cfg)

		slog.Info("Capreel control server starting", "port", cfg.Server.Port, "config", cfgFile)

		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the control server (overrides config)")
}
