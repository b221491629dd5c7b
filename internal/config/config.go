// Package config loads the kopya TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything the daemon needs at startup.
type Config struct {
	DataDir    string
	HTTPAddr   string
	MaxEntries int

	PollInterval time.Duration

	// FilterPatterns are regexes; matching clipboard content is dropped
	// before it reaches the store.
	FilterPatterns []string

	// Database encryption (SQLCipher). When enabled, a key file is created
	// in DataDir on first start.
	EncryptDB bool

	BackupInterval  time.Duration
	BackupRetention int
}

const (
	defaultConfigPath = "~/.config/kopya/config.toml"
	defaultDataDir    = "~/.local/share/kopya"
	defaultHTTPAddr   = "127.0.0.1:9090"

	defaultMaxEntries      = 1000
	defaultPollInterval    = 500 * time.Millisecond
	defaultBackupInterval  = 6 * time.Hour
	defaultBackupRetention = 5
)

// rawConfig mirrors the TOML file layout.
type rawConfig struct {
	DataDir    string `toml:"data_dir"`
	HTTPAddr   string `toml:"http_addr"`
	MaxEntries int    `toml:"max_entries"`

	PollIntervalMs int `toml:"poll_interval_ms"`

	FilterPatterns []string `toml:"filter_patterns"`

	EncryptDB bool `toml:"encrypt_db"`

	Backup struct {
		IntervalMinutes int `toml:"interval_minutes"`
		Retention       int `toml:"retention"`
	} `toml:"backup"`
}

// Load reads the config file at path (or the default location when path is
// empty), falling back to defaults when the file is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.DataDir = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.HTTPAddr); v != "" {
		cfg.HTTPAddr = v
	}
	if raw.MaxEntries > 0 {
		cfg.MaxEntries = raw.MaxEntries
	}
	if raw.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(raw.PollIntervalMs) * time.Millisecond
	}
	cfg.FilterPatterns = raw.FilterPatterns
	cfg.EncryptDB = raw.EncryptDB
	if raw.Backup.IntervalMinutes > 0 {
		cfg.BackupInterval = time.Duration(raw.Backup.IntervalMinutes) * time.Minute
	}
	if raw.Backup.Retention > 0 {
		cfg.BackupRetention = raw.Backup.Retention
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		DataDir:         mustExpand(defaultDataDir),
		HTTPAddr:        defaultHTTPAddr,
		MaxEntries:      defaultMaxEntries,
		PollInterval:    defaultPollInterval,
		BackupInterval:  defaultBackupInterval,
		BackupRetention: defaultBackupRetention,
	}
}

// DatabasePath returns the history database location.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// BackupDir returns the snapshot directory, a sibling of the database.
func (c Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

// LogPath returns the daemon log file location.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "kopya.log")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
