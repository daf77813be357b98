// Package cli implements the hbmsg command line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/habitere/hbmsg/internal/config"
	"github.com/habitere/hbmsg/internal/logging"
)

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

type rootOptions struct {
	configFile string
	logLevel   string

	cfg *config.Config
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "hbmsg",
		Short:         "Habitere marketplace messaging client",
		Long:          "hbmsg reads and sends Habitere marketplace messages from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare invocation launches the interactive client.
			return runTUI(opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newTUICmd(opts),
		newConversationsCmd(opts),
		newThreadCmd(opts),
		newSendCmd(opts),
	)

	return cmd
}

// load resolves configuration and initializes logging. It runs before every
// subcommand.
func (o *rootOptions) load() error {
	loader := config.NewLoader()
	if strings.TrimSpace(o.configFile) != "" {
		loader.SetConfigFile(o.configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if strings.TrimSpace(o.logLevel) != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var output io.Writer = os.Stderr
	if path := strings.TrimSpace(cfg.Logging.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
	}
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       output,
		EnableCaller: cfg.Logging.EnableCaller,
	})

	o.cfg = cfg
	return nil
}

// statePath derives the UI state file location from the cache directory.
func statePath(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Cache.Path) != "" {
		return filepath.Join(filepath.Dir(cfg.Cache.Path), "ui-state.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "hbmsg", "ui-state.json")
}
