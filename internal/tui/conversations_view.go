package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/habitere/hbmsg/internal/messaging"
	"github.com/habitere/hbmsg/internal/tui/styles"
)

type listTickMsg struct{}

type listSyncedMsg struct {
	err error
}

// conversationsView renders the per-counterparty summary list. It polls the
// backend on a fixed cadence; a tick that fires while the previous refresh
// is still outstanding is skipped.
type conversationsView struct {
	session  *messaging.Session
	interval time.Duration

	inFlight bool
	lastErr  error

	selected int
	top      int

	lastWidth  int
	lastHeight int
}

func newConversationsView(session *messaging.Session, interval time.Duration) *conversationsView {
	return &conversationsView{session: session, interval: interval}
}

func (v *conversationsView) Init() tea.Cmd {
	v.session.LoadCachedConversations(context.Background())
	return tea.Batch(v.syncCmd(), v.tickCmd())
}

func (v *conversationsView) Update(msg tea.Msg) tea.Cmd {
	switch typed := msg.(type) {
	case listTickMsg:
		if v.inFlight {
			return v.tickCmd()
		}
		return tea.Batch(v.syncCmd(), v.tickCmd())
	case listSyncedMsg:
		v.inFlight = false
		v.lastErr = typed.err
		v.clampSelection()
		return nil
	case tea.KeyMsg:
		return v.handleKey(typed)
	}
	return nil
}

func (v *conversationsView) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "j", "down":
		v.moveSelection(1)
	case "k", "up":
		v.moveSelection(-1)
	case "g", "home":
		v.selected = 0
		v.top = 0
	case "G", "end":
		v.selected = len(v.session.Conversations()) - 1
		v.clampSelection()
	case "r":
		if !v.inFlight {
			return v.syncCmd()
		}
	case "enter":
		convos := v.session.Conversations()
		if v.selected >= 0 && v.selected < len(convos) {
			return openThreadCmd(convos[v.selected].CounterpartyID)
		}
	}
	return nil
}

func (v *conversationsView) View(width, height int, theme styles.Theme) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	v.lastWidth = width
	v.lastHeight = height

	convos := v.session.Conversations()
	if len(convos) == 0 {
		empty := theme.MutedStyle().Render("no conversations yet")
		if v.lastErr != nil {
			empty = lipgloss.JoinVertical(lipgloss.Left, empty, v.renderError(width, theme))
		}
		return empty
	}

	visible := maxInt(1, height)
	if v.lastErr != nil {
		visible = maxInt(1, visible-1)
	}
	v.ensureVisible(len(convos), visible)

	lines := make([]string, 0, visible)
	now := time.Now().UTC()
	for i := v.top; i < len(convos) && len(lines) < visible; i++ {
		lines = append(lines, v.renderRow(convos[i], i == v.selected, width, now, theme))
	}
	content := strings.Join(lines, "\n")
	if v.lastErr != nil {
		content = lipgloss.JoinVertical(lipgloss.Left, content, v.renderError(width, theme))
	}
	return content
}

func (v *conversationsView) renderRow(c messaging.Conversation, selected bool, width int, now time.Time, theme styles.Theme) string {
	marker := "  "
	if selected {
		marker = "> "
	}

	badge := ""
	if c.UnreadCount > 0 {
		badge = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Chrome.Badge)).Render(fmt.Sprintf(" (%d)", c.UnreadCount))
	}

	stamp := theme.MutedStyle().Render(relativeTime(c.LastMessage.CreatedAt, now))

	preview := c.LastMessage.Content
	if c.IsLastSender {
		preview = "you: " + preview
	}
	preview = strings.ReplaceAll(preview, "\n", " ")

	name := c.CounterpartyName
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Message.Other))
	if c.UnreadCount > 0 {
		nameStyle = nameStyle.Bold(true)
	}

	head := marker + nameStyle.Render(name) + badge + " " + stamp
	line := head + "  " + theme.MutedStyle().Render(truncate(preview, maxInt(0, width-lipgloss.Width(head)-2)))
	if selected {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Chrome.SelectedItem)).Render(line)
	}
	return line
}

func (v *conversationsView) renderError(width int, theme styles.Theme) string {
	msg := "sync error: " + truncate(v.lastErr.Error(), maxInt(0, width-12))
	return lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Status.Error)).Render(msg)
}

func (v *conversationsView) moveSelection(delta int) {
	convos := v.session.Conversations()
	if len(convos) == 0 {
		v.selected = 0
		v.top = 0
		return
	}
	v.selected = clampInt(v.selected+delta, 0, len(convos)-1)
}

func (v *conversationsView) clampSelection() {
	n := len(v.session.Conversations())
	if n == 0 {
		v.selected = 0
		v.top = 0
		return
	}
	v.selected = clampInt(v.selected, 0, n-1)
}

func (v *conversationsView) ensureVisible(total, visible int) {
	v.selected = clampInt(v.selected, 0, total-1)
	if v.selected < v.top {
		v.top = v.selected
	}
	if v.selected >= v.top+visible {
		v.top = v.selected - visible + 1
	}
	v.top = clampInt(v.top, 0, maxInt(0, total-1))
}

func (v *conversationsView) syncCmd() tea.Cmd {
	v.inFlight = true
	session := v.session
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		return listSyncedMsg{err: session.RefreshConversations(ctx)}
	}
}

func (v *conversationsView) tickCmd() tea.Cmd {
	return tea.Tick(v.interval, func(time.Time) tea.Msg {
		return listTickMsg{}
	})
}
