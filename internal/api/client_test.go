package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/messages/conversations", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]ConversationSummary{
			{CounterpartyID: "u2", CounterpartyName: "Ada", LastMessage: "hi", UnreadCount: 1},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-1")
	convos, err := client.Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convos, 1)
	require.Equal(t, "u2", convos[0].CounterpartyID)
	require.Equal(t, 1, convos[0].UnreadCount)
}

func TestThread(t *testing.T) {
	stamp := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages/thread/u2", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ThreadResponse{
			OtherUser: Profile{ID: "u2", Name: "Ada"},
			Messages: []Message{
				{ID: "m1", SenderID: "u2", ReceiverID: "u1", Content: "hi", CreatedAt: stamp},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	thread, err := client.Thread(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, "Ada", thread.OtherUser.Name)
	require.Len(t, thread.Messages, 1)
	require.True(t, thread.Messages[0].CreatedAt.Equal(stamp))
}

func TestThreadRejectsEmptyCounterparty(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", "tok")
	_, err := client.Thread(context.Background(), "  ")
	require.Error(t, err)
	require.True(t, IsValidation(err))
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "u2", req.ReceiverID)
		require.Equal(t, "yo", req.Content)
		require.NotEmpty(t, req.ClientKey)

		_ = json.NewEncoder(w).Encode(Message{
			ID: "m9", SenderID: "u1", ReceiverID: "u2", Content: req.Content,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	msg, err := client.SendMessage(context.Background(), SendMessageRequest{
		ReceiverID: "u2", Content: "yo", ClientKey: "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "m9", msg.ID)
}

func TestSendMessageLocalValidation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	_, err := client.SendMessage(context.Background(), SendMessageRequest{ReceiverID: "u2", Content: "   "})
	require.True(t, IsValidation(err))
	_, err = client.SendMessage(context.Background(), SendMessageRequest{Content: "hello"})
	require.True(t, IsValidation(err))
	require.Zero(t, calls)
}

func TestBackendErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"cannot message yourself"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	_, err := client.SendMessage(context.Background(), SendMessageRequest{ReceiverID: "u1", Content: "hi"})
	require.Error(t, err)

	apiErr, ok := IsBackend(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "cannot message yourself", apiErr.Detail)
}

func TestMarkThreadRead(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	require.NoError(t, client.MarkThreadRead(context.Background(), "u2"))
	require.Equal(t, "/messages/read/u2", path)
}

func TestUserProfileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"user not found"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	_, err := client.UserProfile(context.Background(), "ghost")
	apiErr, ok := IsBackend(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestNetworkErrorWrapped(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "tok", WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
	_, err := client.Conversations(context.Background())
	require.Error(t, err)
	_, isBackend := IsBackend(err)
	require.False(t, isBackend)
	require.False(t, IsValidation(err))
}
