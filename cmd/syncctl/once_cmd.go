package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmined/syncengine/internal/engine"
	"github.com/openmined/syncengine/internal/vfs"
)

func init() {
	rootCmd.AddCommand(newOnceCmd())
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sync pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			e, err := engine.New(cfg, vfs.Noop{})
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "jobs run:          %d\n", report.JobsRun)
			fmt.Fprintf(cmd.OutOrStdout(), "bytes transferred: %d\n", report.BytesTransferred)
			fmt.Fprintf(cmd.OutOrStdout(), "conflicts:         %d\n", report.Conflicts)
			fmt.Fprintf(cmd.OutOrStdout(), "blacklisted local: %d\n", report.LocalBlacklisted)
			fmt.Fprintf(cmd.OutOrStdout(), "blacklisted remote:%d\n", report.RemoteBlacklisted)
			if report.Restart {
				fmt.Fprintln(cmd.OutOrStdout(), green("a second pass is recommended; state changed mid-run"))
			}
			return nil
		},
	}
}
