package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_LoadMissingFileOK(t *testing.T) {
	root := t.TempDir()
	m := New(filepath.Join(root, ".hbmsg", "ui-state.json"))
	require.NoError(t, m.Load())
	s := m.Snapshot()
	require.Equal(t, CurrentVersion, s.Version)
	require.Empty(t, s.Drafts)
}

func TestManager_DraftRoundTrip(t *testing.T) {
	m := New("")

	_, ok := m.Draft("u2")
	require.False(t, ok)

	m.SetDraft("u2", "almost ready to send")
	body, ok := m.Draft("u2")
	require.True(t, ok)
	require.Equal(t, "almost ready to send", body)

	m.DeleteDraft("u2")
	_, ok = m.Draft("u2")
	require.False(t, ok)
}

func TestManager_SetDraftEmptyBodyDeletes(t *testing.T) {
	m := New("")
	m.SetDraft("u2", "text")
	m.SetDraft("u2", "")
	_, ok := m.Draft("u2")
	require.False(t, ok)
}

func TestManager_SaveAndReload(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".hbmsg", "ui-state.json")

	m := New(path)
	m.SetDraft("u2", "draft body")
	m.SetLastCounterparty("u2")
	m.SetPreferences(Preferences{Theme: "high-contrast", ShowTimestamps: true})
	require.NoError(t, m.SaveNow())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	body, ok := reloaded.Draft("u2")
	require.True(t, ok)
	require.Equal(t, "draft body", body)
	require.Equal(t, "u2", reloaded.LastCounterparty())
	require.Equal(t, "high-contrast", reloaded.Preferences().Theme)
	require.True(t, reloaded.Preferences().ShowTimestamps)
}

func TestManager_CloseFlushesDirtyState(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "ui-state.json")

	m := New(path)
	m.SetDraft("u2", "pending")
	require.NoError(t, m.Close())

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	var s UIState
	require.NoError(t, json.Unmarshal(payload, &s))
	require.Equal(t, "pending", s.Drafts["u2"].Body)
}

func TestManager_PrunesStaleDraftsOnSave(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "ui-state.json")

	m := New(path)
	m.mu.Lock()
	m.state.Drafts["old"] = ComposeDraft{
		Target:    "old",
		Body:      "abandoned long ago",
		UpdatedAt: time.Now().UTC().Add(-(draftMaxAge + time.Hour)),
	}
	m.state.Drafts["fresh"] = ComposeDraft{
		Target:    "fresh",
		Body:      "still relevant",
		UpdatedAt: time.Now().UTC(),
	}
	m.mu.Unlock()
	require.NoError(t, m.SaveNow())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	_, ok := reloaded.Draft("old")
	require.False(t, ok)
	_, ok = reloaded.Draft("fresh")
	require.True(t, ok)
}

func TestManager_AtomicWriteLeavesNoTempFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "ui-state.json")

	m := New(path)
	m.SetLastCounterparty("u2")
	require.NoError(t, m.SaveNow())

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestManager_EmptyPathDisablesPersistence(t *testing.T) {
	m := New("")
	m.SetDraft("u2", "memory only")
	require.NoError(t, m.SaveNow())
	require.NoError(t, m.Close())
}
