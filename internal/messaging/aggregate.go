package messaging

import (
	"sort"
	"strings"

	"github.com/habitere/hbmsg/internal/api"
)

// ProfileResolver looks up a user's display identity. Implementations may
// return (Profile{}, false) when the user cannot be resolved; callers fall
// back to a placeholder built from the ID.
type ProfileResolver interface {
	Resolve(userID string) (Profile, bool)
}

// ProfileResolverFunc adapts a function to the ProfileResolver interface.
type ProfileResolverFunc func(userID string) (Profile, bool)

// Resolve implements ProfileResolver.
func (f ProfileResolverFunc) Resolve(userID string) (Profile, bool) {
	return f(userID)
}

// Aggregate derives the conversation list from a flat message set involving
// selfID. It is the reference implementation of the grouping the backend's
// /messages/conversations endpoint performs server-side.
//
// One conversation is produced per distinct counterparty. The unread count
// tallies messages addressed to selfID that are still unread; messages sent
// by selfID never count. The list is ordered by the last message's
// timestamp, newest first, with ties broken by message arrival order so the
// result is deterministic. Duplicate records are treated as distinct
// entries.
func Aggregate(msgs []Message, selfID string, resolve ProfileResolver) []Conversation {
	selfID = strings.TrimSpace(selfID)
	if selfID == "" {
		return nil
	}

	type group struct {
		counterparty string
		last         Message
		lastIndex    int
		unread       int
	}

	groups := make(map[string]*group)
	order := make([]string, 0, 8)

	for i, msg := range msgs {
		var counterparty string
		switch {
		case msg.SenderID == selfID:
			counterparty = msg.ReceiverID
		case msg.ReceiverID == selfID:
			counterparty = msg.SenderID
		default:
			// Not part of this user's message set.
			continue
		}
		if counterparty == "" {
			continue
		}

		g, ok := groups[counterparty]
		if !ok {
			g = &group{counterparty: counterparty, last: msg, lastIndex: i}
			groups[counterparty] = g
			order = append(order, counterparty)
		} else if !msg.CreatedAt.Before(g.last.CreatedAt) {
			// Later timestamp wins; equal timestamps prefer the later entry.
			g.last = msg
			g.lastIndex = i
		}

		if msg.ReceiverID == selfID && !msg.Read {
			g.unread++
		}
	}

	out := make([]Conversation, 0, len(order))
	for _, key := range order {
		g := groups[key]
		profile := PlaceholderProfile(g.counterparty)
		if resolve != nil {
			if p, ok := resolve.Resolve(g.counterparty); ok {
				profile = p
			}
		}
		out = append(out, Conversation{
			CounterpartyID:      g.counterparty,
			CounterpartyName:    profile.Name,
			CounterpartyPicture: profile.Picture,
			LastMessage:         g.last,
			UnreadCount:         g.unread,
			IsLastSender:        g.last.SenderID == selfID,
		})
	}

	// Newest activity first; ties resolved by the last message's position in
	// the input so ordering is stable across recomputations.
	lastIndex := func(c Conversation) int { return groups[c.CounterpartyID].lastIndex }
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return lastIndex(out[i]) > lastIndex(out[j])
	})
	return out
}

// ConversationsFromSummaries maps the backend's pre-aggregated rows into
// Conversations, applying the placeholder identity fallback. The backend
// already orders rows by last activity; the order is preserved.
func ConversationsFromSummaries(rows []api.ConversationSummary) []Conversation {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.CounterpartyName)
		if name == "" {
			name = PlaceholderProfile(row.CounterpartyID).Name
		}
		out = append(out, Conversation{
			CounterpartyID:      row.CounterpartyID,
			CounterpartyName:    name,
			CounterpartyPicture: row.CounterpartyPicture,
			LastMessage: Message{
				Content:   row.LastMessage,
				CreatedAt: row.LastMessageTime,
			},
			UnreadCount:  row.UnreadCount,
			IsLastSender: row.IsLastSender,
		})
	}
	return out
}

// UnreadTotal sums unread counts across a conversation list.
func UnreadTotal(convos []Conversation) int {
	total := 0
	for _, c := range convos {
		total += c.UnreadCount
	}
	return total
}
