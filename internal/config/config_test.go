package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5*time.Second, cfg.Sync.ThreadInterval)
	require.Equal(t, 5*time.Second, cfg.Sync.ListInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Backend.BaseURL = "" }},
		{"malformed base url", func(c *Config) { c.Backend.BaseURL = "not a url" }},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }},
		{"thread interval too small", func(c *Config) { c.Sync.ThreadInterval = 100 * time.Millisecond }},
		{"list interval too small", func(c *Config) { c.Sync.ListInterval = 0 }},
		{"unknown theme", func(c *Config) { c.TUI.Theme = "neon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
backend:
  base_url: https://staging.habitere.com
  user_id: u-77
sync:
  thread_interval: 10s
tui:
  theme: high-contrast
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://staging.habitere.com", cfg.Backend.BaseURL)
	require.Equal(t, "u-77", cfg.Backend.UserID)
	require.Equal(t, 10*time.Second, cfg.Sync.ThreadInterval)
	// Unset keys keep defaults.
	require.Equal(t, 5*time.Second, cfg.Sync.ListInterval)
	require.Equal(t, "high-contrast", cfg.TUI.Theme)
}

func TestLoadFromMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HBMSG_BACKEND_BASE_URL", "https://env.habitere.com")
	t.Setenv("HBMSG_LOGGING_LEVEL", "debug")

	cfg, err := LoadDefault()
	require.NoError(t, err)
	require.Equal(t, "https://env.habitere.com", cfg.Backend.BaseURL)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "x"), expandTilde("~/x"))
	require.Equal(t, "/abs/x", expandTilde("/abs/x"))
	require.Equal(t, "", expandTilde(""))
}
