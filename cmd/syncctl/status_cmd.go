package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the resolved configuration for this sync pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config path:   %s\n", green(cfg.Path))
			fmt.Fprintf(out, "sync dir:      %s\n", cyan(cfg.SyncDir))
			fmt.Fprintf(out, "server url:    %s\n", cyan(cfg.ServerURL))
			fmt.Fprintf(out, "email:         %s\n", cyan(cfg.Email))
			fmt.Fprintf(out, "remote root:   %s\n", cyan(cfg.RemoteRootID))
			fmt.Fprintf(out, "full sync every: %s\n", cyan(cfg.FullSyncInterval.String()))
			if cfg.AccessToken == "" {
				fmt.Fprintln(out, red("no access token configured; set SYNCENGINE_ACCESS_TOKEN"))
			}
			return nil
		},
	}
}
