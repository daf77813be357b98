package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/habitere/hbmsg/internal/api"
	"github.com/habitere/hbmsg/internal/messaging"
	"github.com/habitere/hbmsg/internal/state"
	"github.com/habitere/hbmsg/internal/tui/styles"
)

const maxBubbleWidth = 72

type threadTickMsg struct {
	gen int
}

type threadSyncedMsg struct {
	target string
	gen    int
	err    error
}

type threadOpenedMsg struct {
	target string
	gen    int
	err    error
}

type sendResultMsg struct {
	target string
	gen    int
	err    error
}

// threadView renders the active conversation and the inline compose line.
// The session's staleness guard makes late poll results harmless, so the
// view only guards against overlapping dispatches.
type threadView struct {
	session  *messaging.Session
	uiState  *state.Manager
	interval time.Duration

	target string
	input  string

	// tickGen invalidates tick loops and fetch results left over from a
	// previous open so reopening the view does not multiply the poll
	// cadence or let a stale open clear the in-flight flag early.
	tickGen int

	inFlight bool
	sending  bool
	lastErr  error

	stick          bool
	scroll         int
	showTimestamps bool

	lastWidth  int
	lastHeight int
}

func newThreadView(session *messaging.Session, uiState *state.Manager, interval time.Duration, showTimestamps bool) *threadView {
	return &threadView{
		session:        session,
		uiState:        uiState,
		interval:       interval,
		stick:          true,
		showTimestamps: showTimestamps,
	}
}

func (v *threadView) Init() tea.Cmd {
	return v.tickCmd()
}

// SetTarget opens a conversation. The previous thread's draft is discarded
// by the session; this thread's saved draft, if any, seeds the compose line.
func (v *threadView) SetTarget(counterpartyID string) tea.Cmd {
	next := strings.TrimSpace(counterpartyID)
	if next == "" {
		return nil
	}
	v.target = next
	v.tickGen++
	v.inFlight = false
	v.sending = false
	v.lastErr = nil
	v.stick = true
	v.scroll = 0
	v.input = ""
	if v.uiState != nil {
		if body, ok := v.uiState.Draft(next); ok {
			v.input = body
		}
	}
	return tea.Batch(v.openCmd(next), v.tickCmd())
}

func (v *threadView) Update(msg tea.Msg) tea.Cmd {
	switch typed := msg.(type) {
	case threadTickMsg:
		if typed.gen != v.tickGen || v.target == "" {
			return nil
		}
		if v.inFlight || v.sending {
			return v.tickCmd()
		}
		return tea.Batch(v.syncCmd(v.target), v.tickCmd())
	case threadOpenedMsg:
		if typed.target != v.target || typed.gen != v.tickGen {
			return nil
		}
		v.inFlight = false
		v.lastErr = typed.err
		return nil
	case threadSyncedMsg:
		if typed.target != v.target || typed.gen != v.tickGen {
			return nil
		}
		v.inFlight = false
		// Background poll failures keep the last good view; the error is
		// shown but nothing is torn down.
		v.lastErr = typed.err
		return nil
	case sendResultMsg:
		if typed.target != v.target || typed.gen != v.tickGen {
			return nil
		}
		v.sending = false
		v.lastErr = typed.err
		if typed.err == nil {
			v.input = ""
			v.stick = true
		}
		return nil
	case tea.KeyMsg:
		return v.handleKey(typed)
	}
	return nil
}

func (v *threadView) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		v.persistDraft()
		return popViewCmd()
	case "enter":
		return v.submit()
	case "up", "ctrl+k":
		v.stick = false
		v.scroll++
		return nil
	case "down", "ctrl+j":
		if v.scroll > 0 {
			v.scroll--
		}
		if v.scroll == 0 {
			v.stick = true
		}
		return nil
	case "ctrl+t":
		v.showTimestamps = !v.showTimestamps
		if v.uiState != nil {
			prefs := v.uiState.Preferences()
			prefs.ShowTimestamps = v.showTimestamps
			v.uiState.SetPreferences(prefs)
		}
		return nil
	case "backspace":
		if v.input != "" {
			runes := []rune(v.input)
			v.input = string(runes[:len(runes)-1])
		}
		return nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		v.input += string(msg.Runes)
	case tea.KeySpace:
		v.input += " "
	}
	return nil
}

// submit runs the send pipeline. Empty input is rejected locally without
// touching the network, and a second enter while a send is outstanding is
// dropped.
func (v *threadView) submit() tea.Cmd {
	if v.sending {
		return nil
	}
	if strings.TrimSpace(v.input) == "" {
		v.lastErr = api.NewValidationError("content", "must not be empty")
		return nil
	}
	v.sending = true
	v.lastErr = nil

	target := v.target
	gen := v.tickGen
	content := v.input
	session := v.session
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		_, err := session.SendTo(ctx, target, content)
		return sendResultMsg{target: target, gen: gen, err: err}
	}
}

func (v *threadView) persistDraft() {
	if v.uiState == nil {
		return
	}
	if strings.TrimSpace(v.input) == "" {
		v.uiState.DeleteDraft(v.target)
		return
	}
	v.uiState.SetDraft(v.target, v.input)
}

func (v *threadView) View(width, height int, theme styles.Theme) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	v.lastWidth = width
	v.lastHeight = height

	composeLine := v.renderCompose(width, theme)
	statusLine := v.renderStatus(width, theme)

	bodyHeight := height - lipgloss.Height(composeLine)
	if statusLine != "" {
		bodyHeight -= lipgloss.Height(statusLine)
	}
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	body := v.renderMessages(width, bodyHeight, theme)
	parts := []string{body}
	if statusLine != "" {
		parts = append(parts, statusLine)
	}
	parts = append(parts, composeLine)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (v *threadView) renderMessages(width, height int, theme styles.Theme) string {
	if v.session.State() == messaging.ThreadLoading && len(v.session.Messages()) == 0 {
		return theme.MutedStyle().Render("loading…")
	}

	msgs := v.session.Messages()
	if len(msgs) == 0 {
		return theme.MutedStyle().Render("no messages yet, say hi")
	}

	selfID := v.session.SelfID()
	now := time.Now().UTC()
	var lines []string
	for _, m := range msgs {
		lines = append(lines, v.renderBubble(m, m.SenderID == selfID, width, now, theme)...)
	}

	// Stick to the newest message unless the user scrolled up.
	if len(lines) > height {
		offset := len(lines) - height
		if !v.stick {
			offset = clampInt(offset-v.scroll, 0, offset)
		}
		lines = lines[offset : offset+height]
	}
	return strings.Join(lines, "\n")
}

func (v *threadView) renderBubble(m messaging.Message, own bool, width int, now time.Time, theme styles.Theme) []string {
	bubbleWidth := clampInt(width-4, 10, maxBubbleWidth)
	body := wordwrap.String(m.Content, bubbleWidth)

	color := theme.Message.Other
	author := v.session.Counterparty().Name
	if own {
		color = theme.Message.Own
		author = "you"
	}

	head := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(author)
	if v.showTimestamps {
		head += " " + theme.MutedStyle().Render(relativeTime(m.CreatedAt, now))
	}

	card := head + "\n" + body
	style := lipgloss.NewStyle().
		BorderLeft(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(color)).
		PaddingLeft(1)
	return strings.Split(style.Render(card), "\n")
}

func (v *threadView) renderCompose(width int, theme styles.Theme) string {
	prompt := "> "
	if v.sending {
		prompt = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Status.Sending)).Render("… ")
	}
	line := prompt + v.input + "█"
	return lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Base.Foreground)).Width(maxInt(0, width)).Render(truncate(line, maxInt(0, width)))
}

func (v *threadView) renderStatus(width int, theme styles.Theme) string {
	if v.lastErr == nil {
		return ""
	}
	detail := v.lastErr.Error()
	if apiErr, ok := api.IsBackend(v.lastErr); ok && apiErr.Detail != "" {
		detail = apiErr.Detail
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Status.Error)).Render(truncate(detail, maxInt(0, width)))
}

// openCmd selects the target on the session, which loads the thread and
// marks it read.
func (v *threadView) openCmd(target string) tea.Cmd {
	v.inFlight = true
	gen := v.tickGen
	session := v.session
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		return threadOpenedMsg{target: target, gen: gen, err: session.Select(ctx, target)}
	}
}

func (v *threadView) syncCmd(target string) tea.Cmd {
	v.inFlight = true
	gen := v.tickGen
	session := v.session
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		return threadSyncedMsg{target: target, gen: gen, err: session.RefreshThread(ctx)}
	}
}

func (v *threadView) tickCmd() tea.Cmd {
	gen := v.tickGen
	return tea.Tick(v.interval, func(time.Time) tea.Msg {
		return threadTickMsg{gen: gen}
	})
}
