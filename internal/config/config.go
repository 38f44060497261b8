// Package config loads and validates the per-sync-pair configuration: the
// local directory, the remote drive endpoint, and the tunable thresholds
// spec §9 leaves as "parameters, not invariants".
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openmined/syncengine/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".syncengine", "config.json")
	DefaultSyncDir     = filepath.Join(home, "SyncedFiles")
	DefaultServerURL   = "https://drive.example.com/api/v2"
	DefaultLogFilePath = filepath.Join(home, ".syncengine", "logs", "syncengine.log")
)

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrNoSyncDir  = errors.New("sync directory required")
)

// Config is the full configuration of one SyncEngine instance (one sync
// pair: a local directory and a remote drive folder).
type Config struct {
	Path      string `json:"-" mapstructure:"config_path"`
	SyncDir   string `json:"sync_dir" mapstructure:"sync_dir"`
	ServerURL string `json:"server_url" mapstructure:"server_url"`
	Email     string `json:"email" mapstructure:"email"`

	// RemoteRootID is the drive object id of the folder this pair syncs
	// against; "root" addresses the drive's own top-level folder.
	RemoteRootID string `json:"remote_root_id" mapstructure:"remote_root_id"`

	AccessToken  string `json:"-" mapstructure:"access_token"` // never persisted
	RefreshToken string `json:"refresh_token,omitempty" mapstructure:"refresh_token,omitempty"`

	// Tunables, spec §9 Open Question 3.
	LargeFileThreshold int64         `json:"large_file_threshold" mapstructure:"large_file_threshold"`
	ChunkSize          int64         `json:"chunk_size" mapstructure:"chunk_size"`
	MaxParallelChunks  int           `json:"max_parallel_chunks" mapstructure:"max_parallel_chunks"`
	JobPoolSize        int           `json:"job_pool_size" mapstructure:"job_pool_size"`
	FullSyncInterval   time.Duration `json:"full_sync_interval" mapstructure:"full_sync_interval"`
	RawEventThreshold  int           `json:"raw_event_threshold" mapstructure:"raw_event_threshold"`
	DiskSpaceMargin    int64         `json:"disk_space_margin" mapstructure:"disk_space_margin"`
}

// Default returns a Config populated with sensible defaults; callers still
// must set SyncDir/ServerURL/Email and call Validate.
func Default() *Config {
	return &Config{
		Path:               DefaultConfigPath,
		SyncDir:            DefaultSyncDir,
		ServerURL:          DefaultServerURL,
		RemoteRootID:       "root",
		LargeFileThreshold: 32 << 20, // 32 MiB
		ChunkSize:          8 << 20,  // 8 MiB
		MaxParallelChunks:  4,
		JobPoolSize:        0, // 0 = hardware concurrency, spec §5
		FullSyncInterval:   5 * time.Second,
		RawEventThreshold:  5000,
		DiskSpaceMargin:    256 << 20, // 256 MiB safety margin
	}
}

func (c *Config) Save() error {
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0o644)
}

// Validate resolves paths, normalizes fields, and rejects obviously broken
// configuration before the engine starts.
func (c *Config) Validate() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if c.SyncDir == "" {
		return ErrNoSyncDir
	}
	resolved, err := utils.ResolvePath(c.SyncDir)
	if err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	c.SyncDir = resolved

	if c.ServerURL == "" {
		return fmt.Errorf("server url: %w", ErrInvalidURL)
	}
	if c.LargeFileThreshold <= 0 {
		c.LargeFileThreshold = Default().LargeFileThreshold
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = Default().ChunkSize
	}
	if c.MaxParallelChunks <= 0 {
		c.MaxParallelChunks = Default().MaxParallelChunks
	}
	if c.FullSyncInterval <= 0 {
		c.FullSyncInterval = Default().FullSyncInterval
	}
	if c.RawEventThreshold <= 0 {
		c.RawEventThreshold = Default().RawEventThreshold
	}
	if c.RemoteRootID == "" {
		c.RemoteRootID = Default().RemoteRootID
	}
	return nil
}

// LogValue implements slog.LogValuer, redacting tokens the way the teacher's
// Config does.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sync_dir", c.SyncDir),
		slog.String("server_url", c.ServerURL),
		slog.String("email", c.Email),
		slog.Bool("refresh_token", c.RefreshToken != ""),
		slog.Bool("access_token", c.AccessToken != ""),
		slog.String("path", c.Path),
	)
}

// LoadFromFile reads and parses a Config from disk, starting from defaults
// so partial files still produce valid tunables.
func LoadFromFile(path string) (*Config, error) {
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(resolved, f)
}

func LoadFromReader(path string, r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}
