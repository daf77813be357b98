package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newThreadCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "thread <counterparty-id>",
		Short: "Show the message thread with one counterparty",
		Long:  "Show the full message history with a counterparty, oldest first, and mark it read.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, cleanup, err := buildSession(opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), opts.cfg.Backend.Timeout)
			defer cancel()
			if err := session.Select(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to fetch thread: %w", err)
			}

			msgs := session.Messages()
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}

			if len(msgs) == 0 {
				fmt.Fprintf(os.Stdout, "No messages with %s yet.\n", session.Counterparty().Name)
				return nil
			}

			self := session.SelfID()
			for _, m := range msgs {
				author := session.Counterparty().Name
				if m.SenderID == self {
					author = "you"
				}
				fmt.Fprintf(os.Stdout, "[%s] %s: %s\n",
					m.CreatedAt.Local().Format(time.RFC3339), author, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the newest N messages")
	return cmd
}
