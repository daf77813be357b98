package messaging

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/habitere/hbmsg/internal/api"
	"github.com/habitere/hbmsg/internal/logging"
)

const markReadTimeout = 10 * time.Second

// Backend is the subset of the marketplace API the session consumes.
// *api.Client satisfies it.
type Backend interface {
	Conversations(ctx context.Context) ([]api.ConversationSummary, error)
	Thread(ctx context.Context, counterpartyID string) (*api.ThreadResponse, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.Message, error)
	MarkThreadRead(ctx context.Context, counterpartyID string) error
	UserProfile(ctx context.Context, userID string) (*api.Profile, error)
}

// Cache is an optional local snapshot store written behind successful
// refreshes and read before the first one resolves.
type Cache interface {
	SaveConversations(ctx context.Context, convos []Conversation) error
	Conversations(ctx context.Context) ([]Conversation, error)
	SaveThread(ctx context.Context, counterpartyID string, msgs []Message) error
	Thread(ctx context.Context, counterpartyID string) ([]Message, error)
}

// DraftStore holds per-counterparty compose drafts.
type DraftStore interface {
	Draft(target string) (string, bool)
	SetDraft(target, body string)
	DeleteDraft(target string)
}

// Session owns the conversation list and the active thread for one signed-in
// user. It is instantiated by the messaging view and passed to collaborators
// by reference; there is no package-level instance.
//
// All mutation funnels through seq-tagged apply methods: every fetch is
// tagged at dispatch with the target and a monotonic sequence number, and a
// result is applied only if the target is still active and no
// later-dispatched result has been applied. Late responses for an abandoned
// or superseded fetch are discarded.
type Session struct {
	backend Backend
	selfID  string
	cache   Cache
	drafts  DraftStore
	log     zerolog.Logger

	mu sync.Mutex

	target       string
	threadState  ThreadState
	counterparty Profile
	thread       []Message

	conversations []Conversation
	listLoaded    bool

	threadSeq     uint64
	threadApplied uint64
	listSeq       uint64
	listApplied   uint64

	sendInFlight map[string]bool
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithCache attaches a local snapshot store.
func WithCache(cache Cache) SessionOption {
	return func(s *Session) { s.cache = cache }
}

// WithDrafts attaches a draft store.
func WithDrafts(drafts DraftStore) SessionOption {
	return func(s *Session) { s.drafts = drafts }
}

// WithSessionLogger overrides the session's logger.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// NewSession creates a session for selfID backed by the given API.
func NewSession(backend Backend, selfID string, opts ...SessionOption) *Session {
	s := &Session{
		backend:      backend,
		selfID:       strings.TrimSpace(selfID),
		log:          logging.WithUser(strings.TrimSpace(selfID)).With().Str("component", "session").Logger(),
		threadState:  ThreadUnselected,
		sendInFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelfID returns the signed-in user's ID.
func (s *Session) SelfID() string { return s.selfID }

// Target returns the currently selected counterparty, or "".
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// State returns the active thread's lifecycle state.
func (s *Session) State() ThreadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadState
}

// Counterparty returns the active thread's counterparty identity.
func (s *Session) Counterparty() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterparty
}

// Messages returns a snapshot of the active thread in non-decreasing
// timestamp order. Between poll ticks the snapshot may be stale.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.thread...)
}

// Conversations returns a snapshot of the conversation list.
func (s *Session) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Conversation(nil), s.conversations...)
}

// UnreadCount returns the total unread tally across all conversations.
func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return UnreadTotal(s.conversations)
}

// Select makes counterpartyID the active thread. It fetches the thread and
// the counterparty profile, dispatches a fire-and-forget mark-as-read, and
// clears any in-progress draft for the previously selected thread.
// Selecting the already-active counterparty is an idempotent refresh.
//
// A counterparty with no prior messages and no resolvable profile is not an
// error: the thread comes back empty with a placeholder identity, since a
// conversation may be started fresh via Send.
func (s *Session) Select(ctx context.Context, counterpartyID string) error {
	id := strings.TrimSpace(counterpartyID)
	if id == "" {
		return api.NewValidationError("counterparty_id", "missing")
	}

	s.mu.Lock()
	previous := s.target
	switching := previous != id
	if switching {
		s.target = id
		s.threadState = ThreadLoading
		s.counterparty = PlaceholderProfile(id)
		s.thread = nil
		if s.cache != nil {
			if cached, err := s.cache.Thread(ctx, id); err == nil && len(cached) > 0 {
				s.thread = cached
			}
		}
	}
	seq := s.nextThreadSeqLocked()
	s.mu.Unlock()

	if switching && previous != "" && s.drafts != nil {
		s.drafts.DeleteDraft(previous)
	}

	resp, err := s.backend.Thread(ctx, id)
	if err != nil {
		if apiErr, ok := api.IsBackend(err); ok && apiErr.StatusCode == http.StatusNotFound {
			// Fresh conversation: no history yet. Resolve the counterparty
			// directly so the empty thread still shows a name.
			s.applyThread(id, seq, s.resolveProfile(ctx, id), nil)
			s.markReadAsync(id)
			return nil
		}
		s.log.Warn().Err(err).Str("counterparty_id", id).Msg("thread fetch failed")
		return err
	}

	profile := ProfileFromAPI(resp.OtherUser)
	if strings.TrimSpace(profile.Name) == "" {
		profile = PlaceholderProfile(id)
	}
	s.applyThread(id, seq, profile, MessagesFromAPI(resp.Messages))
	s.markReadAsync(id)
	return nil
}

// Deselect leaves the messaging thread view. In-flight thread fetches for
// the abandoned target resolve against an empty selection and are discarded.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = ""
	s.threadState = ThreadUnselected
	s.counterparty = Profile{}
	s.thread = nil
}

// RefreshThread performs one poll step for the active thread. Callers decide
// the cadence; background callers log the returned error instead of
// surfacing it.
func (s *Session) RefreshThread(ctx context.Context) error {
	s.mu.Lock()
	id := s.target
	if id == "" {
		s.mu.Unlock()
		return nil
	}
	seq := s.nextThreadSeqLocked()
	s.mu.Unlock()

	resp, err := s.backend.Thread(ctx, id)
	if err != nil {
		return err
	}
	profile := ProfileFromAPI(resp.OtherUser)
	if strings.TrimSpace(profile.Name) == "" {
		profile = PlaceholderProfile(id)
	}
	s.applyThread(id, seq, profile, MessagesFromAPI(resp.Messages))
	return nil
}

// RefreshConversations performs one poll step for the conversation list.
func (s *Session) RefreshConversations(ctx context.Context) error {
	s.mu.Lock()
	seq := s.nextListSeqLocked()
	s.mu.Unlock()

	rows, err := s.backend.Conversations(ctx)
	if err != nil {
		return err
	}
	s.applyConversations(seq, ConversationsFromSummaries(rows))
	return nil
}

// LoadCachedConversations seeds the list from the local snapshot store. It
// is a no-op once a live refresh has been applied.
func (s *Session) LoadCachedConversations(ctx context.Context) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.Conversations(ctx)
	if err != nil || len(cached) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listLoaded {
		return
	}
	s.conversations = cached
}

// Send validates and submits a message to the active counterparty, then
// forces an immediate refresh of the thread and the conversation list.
// See SendTo for the pipeline's semantics.
func (s *Session) Send(ctx context.Context, content string) (*Message, error) {
	return s.SendTo(ctx, s.Target(), content)
}

// SendTo validates and submits a message to an explicit counterparty.
//
// Empty or whitespace-only content is rejected locally with a
// ValidationError and no network call. While a send for the same target is
// outstanding, a second submit is rejected with ErrSendInFlight rather than
// dispatched concurrently. On success the draft for the target is cleared
// and the active thread and conversation list are refreshed immediately; on
// failure the error is surfaced, the draft is preserved, and no thread or
// list state is touched.
func (s *Session) SendTo(ctx context.Context, counterpartyID, content string) (*Message, error) {
	id := strings.TrimSpace(counterpartyID)
	if id == "" {
		return nil, api.NewValidationError("counterparty_id", "missing")
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, api.NewValidationError("content", "must not be empty")
	}

	s.mu.Lock()
	if s.sendInFlight[id] {
		s.mu.Unlock()
		return nil, api.ErrSendInFlight
	}
	s.sendInFlight[id] = true
	active := s.target == id
	if active && s.threadState == ThreadReady {
		s.threadState = ThreadSending
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sendInFlight, id)
		if s.target == id && s.threadState == ThreadSending {
			s.threadState = ThreadReady
		}
		s.mu.Unlock()
	}()

	created, err := s.backend.SendMessage(ctx, api.SendMessageRequest{
		ReceiverID: id,
		Content:    trimmed,
		ClientKey:  uuid.New().String(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("counterparty_id", id).Msg("send failed")
		return nil, err
	}

	if s.drafts != nil {
		s.drafts.DeleteDraft(id)
	}

	// Targeted re-sync: do not wait for the next poll tick. Refresh failures
	// here are background-grade; the send itself succeeded.
	if active {
		if err := s.RefreshThread(ctx); err != nil {
			s.log.Warn().Err(err).Msg("post-send thread refresh failed")
		}
	}
	if err := s.RefreshConversations(ctx); err != nil {
		s.log.Warn().Err(err).Msg("post-send list refresh failed")
	}

	msg := MessageFromAPI(*created)
	return &msg, nil
}

// applyThread installs a fetched thread if its tag is still current.
// Out-of-order arrivals apply the most recently dispatched result, not the
// most recently arrived one.
func (s *Session) applyThread(target string, seq uint64, profile Profile, msgs []Message) {
	sortThread(msgs)

	s.mu.Lock()
	if s.target != target {
		s.mu.Unlock()
		s.log.Debug().Str("counterparty_id", target).Uint64("seq", seq).Msg("discarding stale thread result")
		return
	}
	if seq <= s.threadApplied {
		s.mu.Unlock()
		s.log.Debug().Str("counterparty_id", target).Uint64("seq", seq).Msg("discarding superseded thread result")
		return
	}
	s.threadApplied = seq
	s.counterparty = profile
	s.thread = msgs
	if s.threadState == ThreadLoading {
		s.threadState = ThreadReady
	}
	cache := s.cache
	s.mu.Unlock()

	if cache != nil {
		if err := cache.SaveThread(context.Background(), target, msgs); err != nil {
			s.log.Debug().Err(err).Msg("thread cache write failed")
		}
	}
}

func (s *Session) applyConversations(seq uint64, convos []Conversation) {
	s.mu.Lock()
	if seq <= s.listApplied {
		s.mu.Unlock()
		s.log.Debug().Uint64("seq", seq).Msg("discarding superseded list result")
		return
	}
	s.listApplied = seq
	s.conversations = convos
	s.listLoaded = true
	cache := s.cache
	s.mu.Unlock()

	if cache != nil {
		if err := cache.SaveConversations(context.Background(), convos); err != nil {
			s.log.Debug().Err(err).Msg("list cache write failed")
		}
	}
}

// resolveProfile looks up a user's identity, falling back to a placeholder
// when the profile cannot be fetched.
func (s *Session) resolveProfile(ctx context.Context, userID string) Profile {
	profile, err := s.backend.UserProfile(ctx, userID)
	if err != nil || profile == nil || strings.TrimSpace(profile.Name) == "" {
		return PlaceholderProfile(userID)
	}
	return ProfileFromAPI(*profile)
}

// markReadAsync dispatches the idempotent mark-as-read call without blocking
// thread display, and zeroes the local unread tally so the list recomputes
// correctly before the next poll confirms it.
func (s *Session) markReadAsync(counterpartyID string) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].CounterpartyID == counterpartyID {
			s.conversations[i].UnreadCount = 0
		}
	}
	for i := range s.thread {
		if s.thread[i].ReceiverID == s.selfID {
			s.thread[i].Read = true
		}
	}
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		if err := s.backend.MarkThreadRead(ctx, counterpartyID); err != nil {
			logger := logging.WithCounterparty(counterpartyID)
			logger.Warn().Err(err).Msg("mark-as-read failed")
		}
	}()
}

func (s *Session) nextThreadSeqLocked() uint64 {
	s.threadSeq++
	return s.threadSeq
}

func (s *Session) nextListSeqLocked() uint64 {
	s.listSeq++
	return s.listSeq
}
