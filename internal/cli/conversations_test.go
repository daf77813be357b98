package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/habitere/hbmsg/internal/config"
	"github.com/habitere/hbmsg/internal/messaging"
)

type stubLister struct {
	mu        sync.Mutex
	refreshes int
	convos    []messaging.Conversation
}

func (s *stubLister) RefreshConversations(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return nil
}

func (s *stubLister) Conversations() []messaging.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Conversation(nil), s.convos...)
}

func (s *stubLister) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// lockedBuffer guards against the trailing refresh that may still be
// resolving when the watch loop returns.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchConversationsRefreshesOnCadence(t *testing.T) {
	lister := &stubLister{
		convos: []messaging.Conversation{
			{CounterpartyID: "u2", CounterpartyName: "Ada", UnreadCount: 1,
				LastMessage: messaging.Message{Content: "hi there", CreatedAt: time.Now().UTC()}},
		},
	}
	out := &lockedBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchConversations(ctx, lister, 20*time.Millisecond, out) }()

	require.Eventually(t, func() bool { return lister.refreshCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Ada") }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchConversationsStopsOnCancel(t *testing.T) {
	lister := &stubLister{}
	out := &lockedBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, watchConversations(ctx, lister, time.Hour, out))
}

func TestRenderConversationsTable(t *testing.T) {
	var buf bytes.Buffer
	convos := []messaging.Conversation{
		{CounterpartyID: "u2", CounterpartyName: "Ada", UnreadCount: 3,
			LastMessage: messaging.Message{Content: "see you\ntomorrow", CreatedAt: time.Now().UTC()}},
		{CounterpartyID: "u3", CounterpartyName: "Bee", IsLastSender: true,
			LastMessage: messaging.Message{Content: "sent the docs", CreatedAt: time.Now().UTC()}},
	}
	require.NoError(t, renderConversations(&buf, convos))

	out := buf.String()
	require.Contains(t, out, "COUNTERPARTY")
	require.Contains(t, out, "see you tomorrow")
	require.Contains(t, out, "you: sent the docs")
}

func TestRenderConversationsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderConversations(&buf, nil))
	require.Contains(t, buf.String(), "No conversations.")
}

func TestConversationsCmdRegistersWatchFlag(t *testing.T) {
	cmd := newConversationsCmd(&rootOptions{cfg: config.DefaultConfig()})
	require.NotNil(t, cmd.Flags().Lookup("watch"))
	require.NotNil(t, cmd.Flags().Lookup("json"))
}
