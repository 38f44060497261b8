// Command syncctl is the CLI front end for one sync pair: it loads
// configuration, wires the engine, and drives run/once/status/init
// subcommands the way the teacher's client CLI drives its daemon (spec
// §1, "a process a user starts and leaves running").
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/syncengine/internal/config"
	"github.com/openmined/syncengine/internal/telemetry"
	"github.com/openmined/syncengine/internal/version"
)

var (
	home, _          = os.UserHomeDir()
	configFileName   = "config"
	defaultConfigDir = filepath.Join(home, ".syncengine")
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "syncctl",
	Short:   "Bidirectional file sync engine control",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadViperConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringP("sync-dir", "d", config.DefaultSyncDir, "local directory to sync")
	rootCmd.PersistentFlags().StringP("server", "s", config.DefaultServerURL, "remote drive server URL")
	rootCmd.PersistentFlags().StringP("email", "e", "", "account email")
}

func main() {
	logDir := filepath.Dir(config.DefaultLogFilePath)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	logFile, err := os.OpenFile(config.DefaultLogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	slog.SetDefault(telemetry.NewLogger(logFile))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadViperConfig mirrors the teacher CLI's config resolution: an explicit
// --config flag wins, otherwise look in the default config directory; a
// flag set on the command line beats a SYNCENGINE_-prefixed environment
// variable, which beats the config file.
func loadViperConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		path, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(defaultConfigDir)
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("sync_dir", cmd.Flags().Lookup("sync-dir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("email", cmd.Flags().Lookup("email"))

	viper.SetEnvPrefix("SYNCENGINE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	return nil
}

// loadConfig builds and validates a config.Config from the viper state
// loadViperConfig populated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{
		Path:         viper.ConfigFileUsed(),
		SyncDir:      viper.GetString("sync_dir"),
		ServerURL:    viper.GetString("server_url"),
		Email:        viper.GetString("email"),
		RemoteRootID: viper.GetString("remote_root_id"),
		AccessToken:  viper.GetString("access_token"),
		RefreshToken: viper.GetString("refresh_token"),
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join(defaultConfigDir, configFileName+".json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
