package main

import (
	"fmt"
	"net/mail"

	"github.com/spf13/cobra"

	"github.com/openmined/syncengine/internal/config"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var email, syncDir, serverURL, accessToken, remoteRootID string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new sync pair configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := mail.ParseAddress(email); err != nil {
				return fmt.Errorf("invalid email: %w", err)
			}
			if accessToken == "" {
				return fmt.Errorf("--access-token is required")
			}

			cfg := config.Default()
			cfg.Email = email
			cfg.SyncDir = syncDir
			cfg.ServerURL = serverURL
			cfg.AccessToken = accessToken
			if remoteRootID != "" {
				cfg.RemoteRootID = remoteRootID
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg.Path = path
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, green("sync pair initialized"))
			fmt.Fprintf(out, "config path: %s\n", cyan(cfg.Path))
			fmt.Fprintf(out, "sync dir:    %s\n", cyan(cfg.SyncDir))
			fmt.Fprintf(out, "server url:  %s\n", cyan(cfg.ServerURL))
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&syncDir, "sync-dir", "d", config.DefaultSyncDir, "local directory to sync")
	cmd.Flags().StringVarP(&serverURL, "server-url", "u", config.DefaultServerURL, "remote drive server URL")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "access token for the remote drive")
	cmd.Flags().StringVar(&remoteRootID, "remote-root-id", "", "remote folder id to sync against (default: drive root)")

	return cmd
}
