// Package messaging implements the conversation subsystem of the Habitere
// marketplace client: conversation aggregation, the active-thread session,
// periodic synchronization, and the compose/send pipeline.
package messaging

import (
	"sort"
	"strings"
	"time"

	"github.com/habitere/hbmsg/internal/api"
)

// Message is a directed message between two users. Messages are immutable
// in this scope; only the Read flag transitions, and only when the receiver
// opens the thread.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	Read       bool
}

// Profile is a user's display identity.
type Profile struct {
	ID      string
	Name    string
	Picture string
}

// Conversation is the derived per-counterparty summary shown in the
// conversation list. It is recomputed on demand and never persisted by the
// backend.
type Conversation struct {
	CounterpartyID      string
	CounterpartyName    string
	CounterpartyPicture string
	LastMessage         Message
	UnreadCount         int
	IsLastSender        bool
}

// ThreadState describes the lifecycle of the active thread.
type ThreadState int

const (
	// ThreadUnselected means no counterparty is selected.
	ThreadUnselected ThreadState = iota
	// ThreadLoading means the first fetch for the selected counterparty has
	// not resolved yet.
	ThreadLoading
	// ThreadReady means thread data is on screen; it may be a poll tick
	// stale, which is indistinguishable to the caller.
	ThreadReady
	// ThreadSending means a send is outstanding for the active target.
	ThreadSending
)

func (s ThreadState) String() string {
	switch s {
	case ThreadUnselected:
		return "unselected"
	case ThreadLoading:
		return "loading"
	case ThreadReady:
		return "ready"
	case ThreadSending:
		return "sending"
	default:
		return "unknown"
	}
}

// MessageFromAPI converts a backend message record.
func MessageFromAPI(m api.Message) Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		Read:       m.IsRead,
	}
}

// MessagesFromAPI converts a backend thread payload, preserving order.
func MessagesFromAPI(msgs []api.Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = MessageFromAPI(m)
	}
	return out
}

// ProfileFromAPI converts a backend profile record.
func ProfileFromAPI(p api.Profile) Profile {
	return Profile{ID: p.ID, Name: p.Name, Picture: p.Picture}
}

// PlaceholderProfile builds a fallback identity for an unresolvable user so
// a conversation can be started fresh.
func PlaceholderProfile(userID string) Profile {
	return Profile{ID: userID, Name: "User " + ShortID(userID)}
}

// ShortID abbreviates an ID for display.
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// sortThread orders messages in non-decreasing timestamp order. Equal
// timestamps keep their original (arrival) order.
func sortThread(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
