// Package tui is the terminal chat front end: ask questions, browse recent
// experiences and rate the answers the agent gives.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"ait-main/src/internal/agent"
	"ait-main/src/internal/gateway"
	"ait-main/src/internal/memory"
	"ait-main/src/internal/system"
)

const (
	tabChat = iota
	tabRecent
	tabStats
)

const recentLimit = 20

var segments = []string{"Chat", "Recent", "Stats"}

var (
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	aitStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	recallStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Padding(0, 1)
	selectedItem = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).PaddingLeft(2)
	plainItem    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(2)
)

type answerMsg struct {
	answer *agent.Answer
	err    error
}

type Model struct {
	gw        *gateway.Gateway
	ctx       context.Context
	sessionID string

	list     list.Model
	viewport viewport.Model
	input    textinput.Model
	tabIndex int

	transcript []string
	last       *agent.Answer
	waiting    bool
	status     string
}

type item string

func (i item) FilterValue() string { return string(i) }

type itemDelegate struct{}

func (d itemDelegate) Height() int { return 1 }

func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}
	st := plainItem
	if index == m.Index() {
		st = selectedItem
	}
	fmt.Fprint(w, st.Render(string(i)))
}

func New(ctx context.Context, gw *gateway.Gateway) Model {
	m := Model{
		gw:        gw,
		ctx:       ctx,
		sessionID: uuid.NewString(),
		status:    fmt.Sprintf("%d experiences", gw.History.Len()),
	}

	items := make([]list.Item, 0, len(segments))
	for _, s := range segments {
		items = append(items, item(s))
	}
	m.list = list.New(items, itemDelegate{}, 80, 5)
	m.list.Title = "ait"
	m.list.SetShowHelp(false)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(false)
	m.list.Select(tabChat)

	m.viewport = viewport.New(100, 20)

	m.input = textinput.New()
	m.input.Placeholder = "Ask something, or /good /bad /forget"
	m.input.CharLimit = 4096
	m.input.Focus()

	m.viewport.SetContent(m.content())
	return m
}

func (m Model) SessionID() string { return m.sessionID }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width == 0 || msg.Height == 0 {
			return m, nil
		}
		m.list.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-12, 3)
		m.input.Width = max(msg.Width-4, 10)

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render("error: "+msg.err.Error()))
			m.status = "ask failed"
		} else {
			m.last = msg.answer
			m.transcript = append(m.transcript, renderAnswer(msg.answer)...)
			m.status = fmt.Sprintf("%d experiences", m.gw.History.Len())
		}
		m.viewport.SetContent(m.content())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.selectTab((m.tabIndex + 1) % len(segments))
			return m, nil
		case "shift+tab":
			m.selectTab((m.tabIndex + len(segments) - 1) % len(segments))
			return m, nil
		case "enter":
			if m.tabIndex == tabChat {
				return m, m.submit()
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.tabIndex != tabChat {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) selectTab(i int) {
	m.tabIndex = i
	m.list.Select(i)
	m.viewport.SetContent(m.content())
	if i == tabChat {
		m.input.Focus()
		m.viewport.GotoBottom()
	} else {
		m.input.Blur()
		m.viewport.GotoTop()
	}
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if text == "" || m.waiting {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		m.command(text)
		m.viewport.SetContent(m.content())
		m.viewport.GotoBottom()
		return nil
	}

	m.waiting = true
	m.status = "thinking..."
	m.transcript = append(m.transcript, userStyle.Render("you: ")+text)
	m.viewport.SetContent(m.content())
	m.viewport.GotoBottom()

	ctx, a := m.ctx, m.gw.Agent
	return func() tea.Msg {
		ans, err := a.Ask(ctx, text)
		return answerMsg{answer: ans, err: err}
	}
}

func (m *Model) command(text string) {
	if m.last == nil {
		m.status = "nothing to " + strings.TrimPrefix(text, "/") + " yet"
		return
	}
	id := m.last.ID
	switch text {
	case "/good", "/bad":
		fb, ok, err := m.gw.Agent.Rate(m.ctx, id, text == "/good")
		switch {
		case err != nil:
			m.status = "rate failed: " + err.Error()
		case !ok:
			m.status = "answer no longer stored"
		default:
			m.status = fmt.Sprintf("rated %s: %d/%d positive", id.Short(), fb.Positive, fb.Total)
		}
	case "/forget":
		ok, err := m.gw.Agent.Forget(m.ctx, id)
		switch {
		case err != nil:
			m.status = "forget failed: " + err.Error()
		case !ok:
			m.status = "answer no longer stored"
		default:
			m.status = "forgot " + id.Short()
			m.last = nil
		}
	default:
		m.status = "unknown command " + text
	}
}

func renderAnswer(a *agent.Answer) []string {
	lines := []string{aitStyle.Render("ait: " + a.Response)}
	if len(a.Related) > 0 {
		ids := make([]string, 0, len(a.Related))
		for _, r := range a.Related {
			ids = append(ids, r.ID.Short())
		}
		lines = append(lines, recallStyle.Render("recalled: "+strings.Join(ids, ", ")))
	}
	return lines
}

func (m Model) content() string {
	switch m.tabIndex {
	case tabChat:
		if len(m.transcript) == 0 {
			return "Type a question and press Enter.\nEverything you ask is remembered and linked to what it recalled."
		}
		return strings.Join(m.transcript, "\n")
	case tabRecent:
		return recentView(m.gw.History.Recent(recentLimit))
	case tabStats:
		return statsView(m.gw)
	}
	return ""
}

func recentView(exps []memory.Experience) string {
	if len(exps) == 0 {
		return "No experiences yet."
	}
	var b strings.Builder
	for i := len(exps) - 1; i >= 0; i-- {
		e := exps[i]
		fmt.Fprintf(&b, "%5d  %s  %s\n", e.Rank, e.ID.Short(), oneLine(e.Query, 60))
	}
	return b.String()
}

func statsView(gw *gateway.Gateway) string {
	st, err := gw.History.Stats()
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	data, _ := json.MarshalIndent(struct {
		Memory memory.Stats `json:"memory"`
		System system.Info  `json:"system"`
	}{st, system.GetInfo()}, "", "  ")
	return string(data)
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func helpView() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("242")).
		Padding(0, 1).
		Border(lipgloss.NormalBorder()).
		Render("tab/shift+tab segment | enter ask | pgup/pgdown scroll | /good /bad /forget last answer | esc quit")
}

func (m Model) View() string {
	parts := []string{
		lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(m.list.View()),
		m.viewport.View(),
	}
	if m.tabIndex == tabChat {
		parts = append(parts, m.input.View())
	}
	parts = append(parts, statusStyle.Render(m.status), helpView())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Run blocks until the user quits.
func Run(ctx context.Context, gw *gateway.Gateway) error {
	p := tea.NewProgram(New(ctx, gw), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}
	return nil
}
