package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/habitere/hbmsg/internal/api"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "send <counterparty-id> [message...]",
		Short: "Send a message",
		Long:  "Send a message to a counterparty. The body is the remaining arguments, or stdin with --stdin.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args[1:], " ")
			if fromStdin {
				payload, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				content = string(payload)
			}

			session, _, cleanup, err := buildSession(opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), opts.cfg.Backend.Timeout)
			defer cancel()
			msg, err := session.SendTo(ctx, args[0], content)
			if err != nil {
				if apiErr, ok := api.IsBackend(err); ok && apiErr.Detail != "" {
					return fmt.Errorf("send rejected: %s", apiErr.Detail)
				}
				return err
			}

			fmt.Fprintf(os.Stdout, "Sent %s to %s.\n", msg.ID, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the message body from stdin")
	return cmd
}
