package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/habitere/hbmsg/internal/messaging"
)

// conversationSource is the slice of the session the listing consumes.
type conversationSource interface {
	RefreshConversations(ctx context.Context) error
	Conversations() []messaging.Conversation
}

func newConversationsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	var watch bool

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Long:    "List conversations with the most recently active first. With --watch, keep the list refreshed on the sync cadence until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, cleanup, err := buildSession(opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if watch {
				if asJSON {
					return fmt.Errorf("--watch and --json cannot be combined")
				}
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return watchConversations(ctx, session, opts.cfg.Sync.ListInterval, os.Stdout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), opts.cfg.Backend.Timeout)
			defer cancel()
			if err := session.RefreshConversations(ctx); err != nil {
				return fmt.Errorf("failed to fetch conversations: %w", err)
			}

			convos := session.Conversations()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(convos)
			}
			return renderConversations(os.Stdout, convos)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-list on the sync interval until interrupted")
	return cmd
}

// watchConversations re-renders the list on the poll cadence until ctx is
// cancelled. Ticks that fire while the previous refresh is still in flight
// are skipped, so a slow backend never stacks requests.
func watchConversations(ctx context.Context, source conversationSource, interval time.Duration, out io.Writer) error {
	var mu sync.Mutex
	poller := messaging.NewPoller("conversations", interval, func(ctx context.Context) error {
		if err := source.RefreshConversations(ctx); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "--- %s\n", time.Now().Local().Format("15:04:05"))
		return renderConversations(out, source.Conversations())
	})
	poller.Start(ctx)
	defer poller.Stop()
	<-ctx.Done()
	return nil
}

func renderConversations(out io.Writer, convos []messaging.Conversation) error {
	if len(convos) == 0 {
		_, err := fmt.Fprintln(out, "No conversations.")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "COUNTERPARTY\tNAME\tUNREAD\tLAST ACTIVITY\tLAST MESSAGE")
	for _, c := range convos {
		preview := strings.ReplaceAll(c.LastMessage.Content, "\n", " ")
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		if c.IsLastSender {
			preview = "you: " + preview
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			c.CounterpartyID,
			c.CounterpartyName,
			c.UnreadCount,
			c.LastMessage.CreatedAt.Local().Format(time.RFC3339),
			preview,
		)
	}
	return writer.Flush()
}
