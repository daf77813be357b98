// Package config handles hbmsg configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for hbmsg.
type Config struct {
	// Backend settings
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// Sync settings
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Cache settings
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// BackendConfig describes the marketplace REST backend.
type BackendConfig struct {
	// BaseURL is the backend API root, e.g. https://api.habitere.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is the bearer token used for authenticated calls.
	Token string `yaml:"token" mapstructure:"token"`

	// UserID is the authenticated user's ID.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SyncConfig controls the periodic refresh behaviour.
type SyncConfig struct {
	// ThreadInterval is how often the active thread is refreshed.
	ThreadInterval time.Duration `yaml:"thread_interval" mapstructure:"thread_interval"`

	// ListInterval is how often the conversation list is refreshed.
	ListInterval time.Duration `yaml:"list_interval" mapstructure:"list_interval"`
}

// CacheConfig controls the local snapshot store.
type CacheConfig struct {
	// Path is the SQLite database file path. Empty disables the cache.
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains terminal UI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows absolute timestamps instead of relative ones.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Backend: BackendConfig{
			BaseURL: "https://api.habitere.com",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			ThreadInterval: 5 * time.Second,
			ListInterval:   5 * time.Second,
		},
		Cache: CacheConfig{
			Path: filepath.Join(homeDir, ".local", "share", "hbmsg", "cache.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			Theme: "default",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	trimmed := strings.TrimSpace(c.Backend.BaseURL)
	if trimmed == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url %q is not a valid URL", c.Backend.BaseURL)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Sync.ThreadInterval < time.Second {
		return fmt.Errorf("sync.thread_interval must be at least 1s")
	}
	if c.Sync.ListInterval < time.Second {
		return fmt.Errorf("sync.list_interval must be at least 1s")
	}

	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be one of default, high-contrast")
	}

	return nil
}

// EnsureDirectories creates directories required by the configuration.
func (c *Config) EnsureDirectories() error {
	if c.Cache.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Cache.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
