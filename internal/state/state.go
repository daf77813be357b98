// Package state persists per-user UI state for the messaging client:
// compose drafts, the last opened conversation, and display preferences.
// State is stored as a single JSON file, written atomically under an
// exclusive file lock so concurrent client instances do not corrupt it.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	CurrentVersion = 1

	defaultDebounce = 1 * time.Second
	draftMaxAge     = 30 * 24 * time.Hour
)

// UIState is the on-disk schema.
type UIState struct {
	Version          int                     `json:"version"`
	Drafts           map[string]ComposeDraft `json:"drafts,omitempty"`            // counterparty ID -> draft
	LastCounterparty string                  `json:"last_counterparty,omitempty"` // for session restore
	Preferences      Preferences             `json:"preferences,omitempty"`
}

// ComposeDraft is an unsent message body for one conversation.
type ComposeDraft struct {
	Target    string    `json:"target"`
	Body      string    `json:"body,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Preferences are display settings the user toggles at runtime.
type Preferences struct {
	Theme          string `json:"theme,omitempty"`
	ShowTimestamps bool   `json:"show_timestamps,omitempty"`
}

// Manager owns the state file. Mutations mark the state dirty and schedule a
// debounced save; Close flushes whatever is pending.
type Manager struct {
	path     string
	lockPath string

	mu        sync.Mutex
	state     UIState
	dirty     bool
	timer     *time.Timer
	debounce  time.Duration
	lastWrite time.Time
}

// New creates a manager for the state file at path. An empty path disables
// persistence; the manager still tracks state in memory.
func New(path string) *Manager {
	path = strings.TrimSpace(path)
	return &Manager{
		path:     path,
		lockPath: path + ".lock",
		state: UIState{
			Version: CurrentVersion,
			Drafts:  make(map[string]ComposeDraft),
		},
		debounce: defaultDebounce,
	}
}

func (m *Manager) Path() string { return m.path }

// Load reads the state file, replacing in-memory state. A missing or empty
// file loads as fresh state.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}

	loaded, err := m.loadLocked()
	if err != nil {
		return err
	}
	m.state = loaded
	m.dirty = false
	return nil
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() UIState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state)
}

// Draft returns the unsent body for a conversation. It satisfies the
// session's draft store contract.
func (m *Manager) Draft(target string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target = strings.TrimSpace(target)
	if target == "" || len(m.state.Drafts) == 0 {
		return "", false
	}
	draft, ok := m.state.Drafts[target]
	if !ok {
		return "", false
	}
	return draft.Body, true
}

// SetDraft stores the unsent body for a conversation. An empty body deletes
// the draft.
func (m *Manager) SetDraft(target, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target = strings.TrimSpace(target)
	if target == "" {
		return
	}
	if body == "" {
		m.deleteDraftLocked(target)
		return
	}
	if m.state.Drafts == nil {
		m.state.Drafts = make(map[string]ComposeDraft)
	}
	m.state.Drafts[target] = ComposeDraft{
		Target:    target,
		Body:      body,
		UpdatedAt: time.Now().UTC(),
	}
	m.markDirtyLocked()
}

// DeleteDraft removes the draft for a conversation.
func (m *Manager) DeleteDraft(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteDraftLocked(strings.TrimSpace(target))
}

func (m *Manager) deleteDraftLocked(target string) {
	if target == "" || len(m.state.Drafts) == 0 {
		return
	}
	if _, ok := m.state.Drafts[target]; !ok {
		return
	}
	delete(m.state.Drafts, target)
	m.markDirtyLocked()
}

// LastCounterparty returns the counterparty of the last opened thread.
func (m *Manager) LastCounterparty() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastCounterparty
}

// SetLastCounterparty records the counterparty of the last opened thread.
func (m *Manager) SetLastCounterparty(counterpartyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counterpartyID = strings.TrimSpace(counterpartyID)
	if m.state.LastCounterparty == counterpartyID {
		return
	}
	m.state.LastCounterparty = counterpartyID
	m.markDirtyLocked()
}

// Preferences returns the stored display preferences.
func (m *Manager) Preferences() Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Preferences
}

// SetPreferences replaces the stored display preferences.
func (m *Manager) SetPreferences(prefs Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Preferences == prefs {
		return
	}
	m.state.Preferences = prefs
	m.markDirtyLocked()
}

// Close flushes any dirty state and stops the debounce timer.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.SaveNow()
}

// SaveNow writes the state file immediately.
func (m *Manager) SaveNow() error {
	m.mu.Lock()
	if m.path == "" {
		m.mu.Unlock()
		return nil
	}
	state := cloneState(m.state)
	m.dirty = false
	m.mu.Unlock()

	state.Version = CurrentVersion
	state = normalizeState(state, time.Now().UTC())

	if err := withFileLock(m.lockPath, func() error {
		return writeAtomicJSON(m.path, state)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.lastWrite = time.Now().UTC()
	m.mu.Unlock()
	return nil
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			_ = m.SaveNow()
		})
		return
	}
	_ = m.timer.Reset(m.debounce)
}

func (m *Manager) loadLocked() (UIState, error) {
	var out UIState
	if err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				out = UIState{Version: CurrentVersion}
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			out = UIState{Version: CurrentVersion}
			return nil
		}
		return json.Unmarshal(payload, &out)
	}); err != nil {
		return UIState{}, err
	}

	if out.Version <= 0 {
		out.Version = CurrentVersion
	}
	if out.Drafts == nil {
		out.Drafts = make(map[string]ComposeDraft)
	}
	return out, nil
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, state UIState) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// normalizeState prunes abandoned drafts so the file does not accrete
// forever.
func normalizeState(state UIState, now time.Time) UIState {
	if state.Drafts == nil {
		state.Drafts = make(map[string]ComposeDraft)
		return state
	}
	for target, draft := range state.Drafts {
		if strings.TrimSpace(draft.Body) == "" {
			delete(state.Drafts, target)
			continue
		}
		if !draft.UpdatedAt.IsZero() && now.Sub(draft.UpdatedAt) > draftMaxAge {
			delete(state.Drafts, target)
		}
	}
	return state
}

func cloneState(state UIState) UIState {
	out := state
	if state.Drafts != nil {
		out.Drafts = make(map[string]ComposeDraft, len(state.Drafts))
		for k, v := range state.Drafts {
			out.Drafts[k] = v
		}
	}
	return out
}
