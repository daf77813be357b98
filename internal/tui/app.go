// Package tui implements the interactive messaging client: a conversation
// list and a thread view with inline compose, polling the backend through a
// shared session.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/habitere/hbmsg/internal/messaging"
	"github.com/habitere/hbmsg/internal/state"
	"github.com/habitere/hbmsg/internal/tui/styles"
)

const requestTimeout = 30 * time.Second

type ViewID string

const (
	ViewConversations ViewID = "conversations"
	ViewThread        ViewID = "thread"
)

// Config controls the TUI's appearance and poll cadence.
type Config struct {
	Theme          string
	ThreadInterval time.Duration
	ListInterval   time.Duration
	ShowTimestamps bool
}

type openThreadMsg struct {
	counterpartyID string
}

type popViewMsg struct{}

func openThreadCmd(counterpartyID string) tea.Cmd {
	return func() tea.Msg {
		return openThreadMsg{counterpartyID: counterpartyID}
	}
}

func popViewCmd() tea.Cmd {
	return func() tea.Msg {
		return popViewMsg{}
	}
}

type viewModel interface {
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View(width, height int, theme styles.Theme) string
}

// Model is the root bubbletea model. It owns the view stack; the session
// owns the data.
type Model struct {
	session *messaging.Session
	uiState *state.Manager
	theme   styles.Theme
	cfg     Config

	width    int
	height   int
	showHelp bool

	viewStack []ViewID
	views     map[ViewID]viewModel
}

// NewModel builds the root model around an existing session.
func NewModel(cfg Config, session *messaging.Session, uiState *state.Manager) (*Model, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	if uiState != nil {
		snap := uiState.Snapshot()
		// A stored theme name doubles as the "preferences were saved at
		// least once" marker; the theme itself stays config-driven.
		if snap.Preferences.Theme != "" {
			normalized.ShowTimestamps = snap.Preferences.ShowTimestamps
		}
		uiState.SetPreferences(state.Preferences{
			Theme:          normalized.Theme,
			ShowTimestamps: normalized.ShowTimestamps,
		})
	}

	m := &Model{
		session:   session,
		uiState:   uiState,
		theme:     styles.Lookup(normalized.Theme),
		cfg:       normalized,
		viewStack: []ViewID{ViewConversations},
		views:     make(map[ViewID]viewModel),
	}
	m.views[ViewConversations] = newConversationsView(session, normalized.ListInterval)
	m.views[ViewThread] = newThreadView(session, uiState, normalized.ThreadInterval, normalized.ShowTimestamps)
	return m, nil
}

// Run builds the model and drives the program until exit.
func Run(cfg Config, session *messaging.Session, uiState *state.Manager) error {
	model, err := NewModel(cfg, session, uiState)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// Close flushes persistent UI state.
func (m *Model) Close() error {
	if m == nil || m.uiState == nil {
		return nil
	}
	return m.uiState.Close()
}

func (m *Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if view := m.activeView(); view != nil {
		cmds = append(cmds, view.Init())
	}
	// Reopen the conversation the user had open when they last quit.
	if m.uiState != nil {
		if last := m.uiState.LastCounterparty(); last != "" {
			cmds = append(cmds, openThreadCmd(last))
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case openThreadMsg:
		m.pushView(ViewThread)
		if m.uiState != nil {
			m.uiState.SetLastCounterparty(typed.counterpartyID)
		}
		if view := m.views[ViewThread]; view != nil {
			if setter, ok := view.(interface {
				SetTarget(string) tea.Cmd
			}); ok {
				return m, setter.SetTarget(typed.counterpartyID)
			}
		}
		return m, nil
	case popViewMsg:
		m.popView()
		if view := m.activeView(); view != nil {
			return m, view.Init()
		}
		return m, nil
	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(typed); handled {
			return m, cmd
		}
	}

	if active := m.activeView(); active != nil {
		return m, active.Update(msg)
	}
	return m, nil
}

func (m *Model) View() string {
	active := m.activeView()
	if active == nil {
		return "no active view"
	}
	header := m.renderHeader()
	footer := m.renderFooter()
	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 0 {
		contentHeight = 0
	}
	body := active.View(m.width, contentHeight, m.theme)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	// The thread view owns text input; only unambiguous chords are global
	// while it is active.
	if m.activeViewID() == ViewThread {
		switch msg.String() {
		case "ctrl+c":
			return tea.Quit, true
		}
		return nil, false
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit, true
	case "?":
		m.showHelp = !m.showHelp
		return nil, true
	}
	return nil, false
}

func (m *Model) renderHeader() string {
	title := "hbmsg"
	if m.activeViewID() == ViewThread {
		name := strings.TrimSpace(m.session.Counterparty().Name)
		if name != "" {
			title = "hbmsg / " + name
		}
	}
	unread := m.session.UnreadCount()
	if unread > 0 {
		badge := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Chrome.Badge)).Render(fmt.Sprintf(" [%d unread]", unread))
		title += badge
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Chrome.Header)).Bold(true).Width(maxInt(0, m.width)).Render(title)
}

func (m *Model) renderFooter() string {
	var hint string
	switch m.activeViewID() {
	case ViewThread:
		hint = "enter send · esc back · ctrl+c quit"
	default:
		hint = "j/k move · enter open · q quit"
		if m.showHelp {
			hint = "j/k or arrows move · enter open thread · r refresh · q or ctrl+c quit · ? close help"
		}
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Chrome.Footer)).Width(maxInt(0, m.width)).Render(hint)
}

func (m *Model) activeView() viewModel {
	return m.views[m.activeViewID()]
}

func (m *Model) activeViewID() ViewID {
	if len(m.viewStack) == 0 {
		return ViewConversations
	}
	return m.viewStack[len(m.viewStack)-1]
}

func (m *Model) pushView(id ViewID) {
	if id == "" {
		return
	}
	if _, ok := m.views[id]; !ok {
		return
	}
	if m.activeViewID() == id {
		return
	}
	m.viewStack = append(m.viewStack, id)
}

func (m *Model) popView() {
	if len(m.viewStack) <= 1 {
		return
	}
	leaving := m.activeViewID()
	m.viewStack = m.viewStack[:len(m.viewStack)-1]
	if leaving == ViewThread {
		m.session.Deselect()
		// Backing out deliberately means the next launch starts on the
		// list, not in this thread.
		if m.uiState != nil {
			m.uiState.SetLastCounterparty("")
		}
	}
}

func (c Config) normalize() (Config, error) {
	if c.ThreadInterval <= 0 {
		c.ThreadInterval = messaging.DefaultSyncInterval
	}
	if c.ListInterval <= 0 {
		c.ListInterval = messaging.DefaultSyncInterval
	}
	if strings.TrimSpace(c.Theme) == "" {
		c.Theme = "default"
	}
	if _, ok := styles.Themes[c.Theme]; !ok {
		return Config{}, fmt.Errorf("invalid theme %q", c.Theme)
	}
	return c, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
