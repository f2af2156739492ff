package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, stored as TOML in the data directory.
type Config struct {
	// CurrentUserID identifies the local device's user. Writes made through
	// the services are attributed to this user.
	CurrentUserID string `toml:"current_user_id"`

	// DataDir holds the SQLite database, the lock file and logs.
	DataDir string `toml:"data_dir"`

	// SyncIntervalSec is the periodic reconciliation interval while online.
	SyncIntervalSec int `toml:"sync_interval_sec"`

	// RemoteCallTimeoutSec bounds each remote authority call. A timed-out
	// call counts as failed; the pending entry stays queued for retry.
	RemoteCallTimeoutSec int `toml:"remote_call_timeout_sec"`

	// RemoteLatencyMs is the simulated latency of the mock remote.
	RemoteLatencyMs int `toml:"remote_latency_ms"`

	// StartOnline sets the initial connectivity state at daemon startup.
	StartOnline bool `toml:"start_online"`
}

// Default returns a config with sensible defaults rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		CurrentUserID:        "",
		DataDir:              dataDir,
		SyncIntervalSec:      30,
		RemoteCallTimeoutSec: 10,
		RemoteLatencyMs:      500,
		StartOnline:          true,
	}
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chatsync.db")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "chatsyncd.log")
}

// SyncInterval returns the periodic sync interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// RemoteCallTimeout returns the per-call remote timeout as a duration.
func (c *Config) RemoteCallTimeout() time.Duration {
	return time.Duration(c.RemoteCallTimeoutSec) * time.Second
}

// Validate checks fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.CurrentUserID == "" {
		return fmt.Errorf("current_user_id must be set")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	return nil
}

// Load reads config from the given path. Returns an error if the file is
// missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.SyncIntervalSec <= 0 {
		cfg.SyncIntervalSec = 30
	}
	if cfg.RemoteCallTimeoutSec <= 0 {
		cfg.RemoteCallTimeoutSec = 10
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
