package messaging

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/habitere/hbmsg/internal/api"
)

var aggBase = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func msgAt(id, from, to, content string, offset time.Duration, read bool) Message {
	return Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		CreatedAt:  aggBase.Add(offset),
		Read:       read,
	}
}

func TestAggregateEmptySet(t *testing.T) {
	require.Empty(t, Aggregate(nil, "u1", nil))
	require.Empty(t, Aggregate([]Message{}, "u1", nil))
}

func TestAggregateSingleIncoming(t *testing.T) {
	msgs := []Message{msgAt("m1", "u2", "u1", "hi", 0, false)}
	convos := Aggregate(msgs, "u1", nil)

	require.Len(t, convos, 1)
	c := convos[0]
	require.Equal(t, "u2", c.CounterpartyID)
	require.Equal(t, 1, c.UnreadCount)
	require.Equal(t, "hi", c.LastMessage.Content)
	require.False(t, c.IsLastSender)
}

func TestAggregateOneGroupPerCounterparty(t *testing.T) {
	msgs := []Message{
		msgAt("m1", "u2", "u1", "a", 0, true),
		msgAt("m2", "u1", "u2", "b", time.Minute, false),
		msgAt("m3", "u3", "u1", "c", 2*time.Minute, false),
		msgAt("m4", "u1", "u4", "d", 3*time.Minute, false),
	}
	convos := Aggregate(msgs, "u1", nil)

	require.Len(t, convos, 3)
	ids := make([]string, 0, 3)
	for _, c := range convos {
		ids = append(ids, c.CounterpartyID)
	}
	require.Equal(t, []string{"u4", "u3", "u2"}, ids)
}

func TestAggregateUnreadCountReceiverPerspective(t *testing.T) {
	msgs := []Message{
		msgAt("m1", "u2", "u1", "in unread", 0, false),
		msgAt("m2", "u2", "u1", "in read", time.Second, true),
		msgAt("m3", "u1", "u2", "out unread", 2*time.Second, false),
	}
	convos := Aggregate(msgs, "u1", nil)

	require.Len(t, convos, 1)
	require.Equal(t, 1, convos[0].UnreadCount)
	require.True(t, convos[0].IsLastSender)
}

func TestAggregateSelfInitiatedOnlyHasZeroUnread(t *testing.T) {
	msgs := []Message{
		msgAt("m1", "u1", "u2", "sent", 0, false),
		msgAt("m2", "u1", "u2", "sent again", time.Second, false),
	}
	convos := Aggregate(msgs, "u1", nil)
	require.Len(t, convos, 1)
	require.Zero(t, convos[0].UnreadCount)
}

func TestAggregateIgnoresUnrelatedMessages(t *testing.T) {
	msgs := []Message{
		msgAt("m1", "u5", "u6", "not mine", 0, false),
	}
	require.Empty(t, Aggregate(msgs, "u1", nil))
}

func TestAggregateOrderDescendingByLastActivity(t *testing.T) {
	msgs := []Message{
		msgAt("m1", "u2", "u1", "old", 0, true),
		msgAt("m2", "u3", "u1", "new", time.Hour, false),
		msgAt("m3", "u2", "u1", "newest", 2*time.Hour, false),
	}
	convos := Aggregate(msgs, "u1", nil)

	require.Len(t, convos, 2)
	require.Equal(t, "u2", convos[0].CounterpartyID)
	require.Equal(t, "newest", convos[0].LastMessage.Content)
	require.Equal(t, "u3", convos[1].CounterpartyID)
}

func TestAggregateTieBreakIsDeterministic(t *testing.T) {
	// Two counterparties with identical last-message timestamps: the group
	// whose last message arrived later in the input sorts first, every time.
	msgs := []Message{
		msgAt("m1", "u2", "u1", "a", time.Minute, false),
		msgAt("m2", "u3", "u1", "b", time.Minute, false),
	}
	for i := 0; i < 5; i++ {
		convos := Aggregate(msgs, "u1", nil)
		require.Len(t, convos, 2)
		require.Equal(t, "u3", convos[0].CounterpartyID)
		require.Equal(t, "u2", convos[1].CounterpartyID)
	}
}

func TestAggregateEqualTimestampsLastEntryWins(t *testing.T) {
	msgs := []Message{
		msgAt("m1", "u2", "u1", "first", time.Minute, true),
		msgAt("m2", "u2", "u1", "second", time.Minute, true),
	}
	convos := Aggregate(msgs, "u1", nil)
	require.Len(t, convos, 1)
	require.Equal(t, "second", convos[0].LastMessage.Content)
}

func TestAggregateDuplicateRecordsBothCount(t *testing.T) {
	// A retried send the backend failed to deduplicate: both copies are
	// distinct entries and both contribute to unread and ordering.
	dup := msgAt("m1", "u2", "u1", "hi", 0, false)
	convos := Aggregate([]Message{dup, dup}, "u1", nil)
	require.Len(t, convos, 1)
	require.Equal(t, 2, convos[0].UnreadCount)
}

func TestAggregateProfileResolution(t *testing.T) {
	resolver := ProfileResolverFunc(func(id string) (Profile, bool) {
		if id == "u2" {
			return Profile{ID: "u2", Name: "Ada Lovelace", Picture: "https://img/ada"}, true
		}
		return Profile{}, false
	})
	msgs := []Message{
		msgAt("m1", "u2", "u1", "a", 0, false),
		msgAt("m2", "u3-abcdefghij", "u1", "b", time.Second, false),
	}
	convos := Aggregate(msgs, "u1", resolver)

	require.Len(t, convos, 2)
	require.Equal(t, "Ada Lovelace", convos[1].CounterpartyName)
	require.Equal(t, "https://img/ada", convos[1].CounterpartyPicture)
	// Unresolved profile falls back to a placeholder built from the ID.
	require.Equal(t, "User u3-abcde", convos[0].CounterpartyName)
	require.Empty(t, convos[0].CounterpartyPicture)
}

func TestAggregateManyCounterparties(t *testing.T) {
	msgs := make([]Message, 0, 40)
	for i := 0; i < 20; i++ {
		other := fmt.Sprintf("peer-%02d", i)
		msgs = append(msgs,
			msgAt("in-"+other, other, "u1", "ping", time.Duration(i)*time.Minute, false),
			msgAt("out-"+other, "u1", other, "pong", time.Duration(i)*time.Minute+30*time.Second, false),
		)
	}
	convos := Aggregate(msgs, "u1", nil)
	require.Len(t, convos, 20)
	for i := 1; i < len(convos); i++ {
		require.False(t, convos[i-1].LastMessage.CreatedAt.Before(convos[i].LastMessage.CreatedAt))
	}
	require.Equal(t, 20, UnreadTotal(convos))
}

func TestConversationsFromSummaries(t *testing.T) {
	rows := []api.ConversationSummary{
		{
			CounterpartyID:   "u2",
			CounterpartyName: "Ada",
			LastMessage:      "see you",
			LastMessageTime:  aggBase,
			UnreadCount:      3,
			IsLastSender:     true,
		},
		{CounterpartyID: "u9-0123456789", LastMessageTime: aggBase.Add(-time.Hour)},
	}
	convos := ConversationsFromSummaries(rows)

	require.Len(t, convos, 2)
	require.Equal(t, "Ada", convos[0].CounterpartyName)
	require.Equal(t, 3, convos[0].UnreadCount)
	require.True(t, convos[0].IsLastSender)
	require.Equal(t, "User u9-01234", convos[1].CounterpartyName)
}

func TestUnreadTotal(t *testing.T) {
	require.Zero(t, UnreadTotal(nil))
	require.Equal(t, 5, UnreadTotal([]Conversation{{UnreadCount: 2}, {UnreadCount: 0}, {UnreadCount: 3}}))
}
