package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openmined/syncengine/internal/engine"
	"github.com/openmined/syncengine/internal/vfs"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the sync engine and keep it running until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			slog.Info("syncctl", "op", "run", "sync_dir", cfg.SyncDir, "config", cfg)

			e, err := engine.New(cfg, vfs.Noop{})
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Start(cmd.Context()); err != nil {
				if errors.Is(err, engine.ErrAlreadyRunning) {
					slog.Error("syncctl", "op", "run", "error", "another instance is already syncing this directory")
				}
				return err
			}

			<-cmd.Context().Done()
			slog.Info("syncctl", "op", "run", "event", "shutting down")
			return e.Stop()
		},
	}
}
