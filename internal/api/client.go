// Package api provides the REST client for the Habitere marketplace backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/habitere/hbmsg/internal/logging"
)

const defaultTimeout = 30 * time.Second

// Message is a directed message as stored by the backend.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Profile is a user's display identity.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// ConversationSummary is one row of the backend's pre-aggregated
// conversation list.
type ConversationSummary struct {
	CounterpartyID      string    `json:"counterparty_id"`
	CounterpartyName    string    `json:"counterparty_name"`
	CounterpartyPicture string    `json:"counterparty_picture,omitempty"`
	LastMessage         string    `json:"last_message"`
	LastMessageTime     time.Time `json:"last_message_time"`
	UnreadCount         int       `json:"unread_count"`
	IsLastSender        bool      `json:"is_last_sender"`
}

// ThreadResponse is the backend's view of one two-party thread, messages in
// ascending timestamp order.
type ThreadResponse struct {
	OtherUser Profile   `json:"other_user"`
	Messages  []Message `json:"messages"`
}

// SendMessageRequest is the body for creating a message. ClientKey is a
// client-generated UUID letting the backend deduplicate retried submissions.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	ClientKey  string `json:"client_key,omitempty"`
}

// Client is a credentials-bearing client for the messaging endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a backend client rooted at baseURL, authenticating with
// the given bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        logging.Component("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conversations fetches the pre-aggregated conversation list for the
// authenticated user.
func (c *Client) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/messages/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Thread fetches the full message thread with one counterparty.
func (c *Client) Thread(ctx context.Context, counterpartyID string) (*ThreadResponse, error) {
	id := strings.TrimSpace(counterpartyID)
	if id == "" {
		return nil, NewValidationError("counterparty_id", "missing")
	}
	var out ThreadResponse
	if err := c.do(ctx, http.MethodGet, "/messages/thread/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage creates a new message addressed to req.ReceiverID.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if strings.TrimSpace(req.ReceiverID) == "" {
		return nil, NewValidationError("receiver_id", "missing")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, NewValidationError("content", "must not be empty")
	}
	var out Message
	if err := c.do(ctx, http.MethodPost, "/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkThreadRead marks every message from counterpartyID to the
// authenticated user as read. Idempotent on the server.
func (c *Client) MarkThreadRead(ctx context.Context, counterpartyID string) error {
	id := strings.TrimSpace(counterpartyID)
	if id == "" {
		return NewValidationError("counterparty_id", "missing")
	}
	return c.do(ctx, http.MethodPost, "/messages/read/"+url.PathEscape(id), nil, nil)
}

// UserProfile looks up a user's display identity.
func (c *Client) UserProfile(ctx context.Context, userID string) (*Profile, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, NewValidationError("user_id", "missing")
	}
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("backend call")

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func parseDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Detail)
}
