// Package inspect is a terminal view over the offline queue.
package inspect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clawinfra/confessly/internal/offline"
	"github.com/clawinfra/confessly/internal/queue"
)

// RefreshInterval is how often the queue listing is re-read.
const RefreshInterval = time.Second

// Source is the queue the view observes and drives. *offline.Manager
// satisfies it.
type Source interface {
	Queue() []queue.QueuedAction
	IsOnline() bool
	ProcessNow(ctx context.Context) offline.PassResult
	ClearQueue(ctx context.Context)
}

var _ Source = (*offline.Manager)(nil)

// Run shows the view until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source) error {
	p := tea.NewProgram(NewModel(ctx, src), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// ─────────────────────────────────────────────────────
// Bubble Tea messages
// ─────────────────────────────────────────────────────

type tickMsg time.Time

type passMsg offline.PassResult

type clearedMsg struct{}

// ─────────────────────────────────────────────────────
// Styles
// ─────────────────────────────────────────────────────

var (
	primaryColor = lipgloss.Color("#7C3AED") // violet
	mutedColor   = lipgloss.Color("#6B7280") // gray
	successColor = lipgloss.Color("#10B981") // green
	errorColor   = lipgloss.Color("#EF4444") // red
	warnColor    = lipgloss.Color("#F59E0B") // amber

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	listBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	retryingRow = lipgloss.NewStyle().
			Foreground(warnColor)

	statusOnline = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	statusOffline = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// ─────────────────────────────────────────────────────
// Model
// ─────────────────────────────────────────────────────

// Model is the bubbletea model behind Run. It is exported so callers can
// embed it or drive it in tests.
type Model struct {
	ctx     context.Context
	src     Source
	now     func() time.Time
	actions []queue.QueuedAction
	online  bool
	busy    bool
	notice  string
	list    viewport.Model
	width   int
	height  int
	ready   bool
}

func NewModel(ctx context.Context, src Source) Model {
	m := Model{ctx: ctx, src: src, now: time.Now}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) refresh() {
	m.actions = m.src.Queue()
	m.online = m.src.IsOnline()
	if m.ready {
		m.list.SetContent(m.renderRows())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.src.IsOnline() {
				m.notice = "offline: replay waits for connectivity"
				return m, nil
			}
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.notice = "replaying..."
			ctx, src := m.ctx, m.src
			return m, func() tea.Msg { return passMsg(src.ProcessNow(ctx)) }
		case "c":
			ctx, src := m.ctx, m.src
			return m, func() tea.Msg {
				src.ClearQueue(ctx)
				return clearedMsg{}
			}
		}

	case passMsg:
		m.busy = false
		m.notice = "pass " + offline.PassResult(msg).String()
		m.refresh()
		return m, nil

	case clearedMsg:
		m.notice = "queue cleared"
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listW := m.width - 2
		listH := m.height - 6 // header, column row, notice, footer, borders
		if listH < 1 {
			listH = 1
		}
		if !m.ready {
			m.list = viewport.New(listW, listH)
			m.ready = true
		} else {
			m.list.Width = listW
			m.list.Height = listH
		}
		m.list.SetContent(m.renderRows())
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading offline queue..."
	}

	status := statusOffline.Render("● OFFLINE")
	if m.online {
		status = statusOnline.Render("● ONLINE")
	}
	header := headerStyle.Width(m.width).Render(
		fmt.Sprintf("  Offline queue (%d)  %s", len(m.actions), status),
	)

	columns := columnStyle.Render(formatRow("ID", "TYPE", "AGE", "RETRIES"))
	body := listBorder.Width(m.width - 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, columns, m.list.View()),
	)

	footer := footerStyle.Render("  r: replay │ c: clear │ q: quit │ ↑↓: scroll")

	parts := []string{header, body}
	if m.notice != "" {
		parts = append(parts, noticeStyle.Render("  "+m.notice))
	}
	parts = append(parts, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// ─────────────────────────────────────────────────────
// Rendering helpers
// ─────────────────────────────────────────────────────

func (m Model) renderRows() string {
	if len(m.actions) == 0 {
		return noticeStyle.Render("Queue is empty.")
	}

	now := m.now()
	var sb strings.Builder
	for _, a := range m.actions {
		line := formatRow(
			a.ID,
			string(a.Type),
			formatAge(now.Sub(a.EnqueuedAt)),
			fmt.Sprintf("%d/%d", a.RetryCount, a.MaxRetries),
		)
		if a.RetryCount > 0 {
			sb.WriteString(retryingRow.Render(line))
		} else {
			sb.WriteString(rowStyle.Render(line))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatRow(id, typ, age, retries string) string {
	return fmt.Sprintf("%-36s  %-26s  %-8s  %s", id, typ, age, retries)
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
