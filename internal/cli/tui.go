package cli

import (
	"github.com/spf13/cobra"

	"github.com/habitere/hbmsg/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive messaging client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts)
		},
	}
}

func runTUI(opts *rootOptions) error {
	session, uiState, cleanup, err := buildSession(opts.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return tui.Run(tui.Config{
		Theme:          opts.cfg.TUI.Theme,
		ThreadInterval: opts.cfg.Sync.ThreadInterval,
		ListInterval:   opts.cfg.Sync.ListInterval,
		ShowTimestamps: opts.cfg.TUI.ShowTimestamps,
	}, session, uiState)
}
