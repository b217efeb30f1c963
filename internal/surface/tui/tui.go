// Package tui is the terminal accept/reject dialog for the feedback reconciler.
//
// The bubbletea loop owns the Model. Results produced on other goroutines
// reach it through Surface, which forwards them with tea.Program.Send.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/promptboost/internal/feedback"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const actionTimeout = 60 * time.Second

// Controller is the subset of the reconciler the dialog drives. Every call
// names the session the dialog is showing.
type Controller interface {
	OnAccept(ctx context.Context, sessionID string) error
	OnReject(ctx context.Context, sessionID string) (*feedback.SessionState, error)
	OnClose(ctx context.Context, sessionID string) error
}

// ShowMsg presents a new attempt.
type ShowMsg struct {
	State feedback.SessionState
}

// NotifyMsg shows a one-line status notice.
type NotifyMsg struct {
	Title string
	Body  string
}

type actionDoneMsg struct {
	action string
	err    error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bodyStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).MarginTop(1)
)

// Model is the bubbletea model for the dialog.
type Model struct {
	ctrl Controller

	state   *feedback.SessionState
	notice  string
	errText string
	busy    string
	width   int
}

// NewModel creates a dialog driven by ctrl.
func NewModel(ctrl Controller) Model {
	return Model{ctrl: ctrl, width: 80}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case ShowMsg:
		s := msg.State
		m.state = &s
		m.notice, m.errText = "", ""
	case NotifyMsg:
		m.notice = strings.TrimSpace(msg.Title + ": " + msg.Body)
	case actionDoneMsg:
		m.busy = ""
		m.handleDone(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleDone(msg actionDoneMsg) {
	switch {
	case msg.err == nil:
		if msg.action != "reject" && m.state != nil {
			m.state.AwaitingFeedback = false
			m.notice = "Accepted."
		}
	case errors.Is(msg.err, feedback.ErrBusy):
		m.notice = "Still working on the previous action."
	case errors.Is(msg.err, feedback.ErrSuperseded):
		m.notice = "A newer result replaced this one."
	case errors.Is(msg.err, feedback.ErrNoPending):
		m.notice = "Nothing awaiting feedback."
	default:
		m.errText = msg.err.Error()
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	pending := m.state != nil && m.state.AwaitingFeedback
	if !pending {
		if key == "q" {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.busy != "" {
		return m, nil
	}

	sessionID := m.state.SessionID
	switch key {
	case "a", "enter":
		m.busy = "Accepting..."
		return m, m.run("accept", func(ctx context.Context) error {
			return m.ctrl.OnAccept(ctx, sessionID)
		})
	case "esc", "q":
		m.busy = "Closing..."
		return m, m.run("close", func(ctx context.Context) error {
			return m.ctrl.OnClose(ctx, sessionID)
		})
	case "r":
		m.busy = "Rerolling..."
		return m, m.run("reject", func(ctx context.Context) error {
			_, err := m.ctrl.OnReject(ctx, sessionID)
			return err
		})
	}
	return m, nil
}

// run executes fn off the UI loop and reports its outcome as a message.
func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PromptBoost"))
	b.WriteString("\n\n")

	if m.state == nil {
		b.WriteString(labelStyle.Render("Copy text ending in the trigger suffix to enhance it."))
	} else {
		width := m.width - 4
		if width < 20 {
			width = 20
		}
		b.WriteString(labelStyle.Render("Original"))
		b.WriteString("\n")
		b.WriteString(bodyStyle.Width(width).Render(m.state.TrueOriginalText))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("Enhanced (session %s)", shortID(m.state.SessionID))))
		b.WriteString("\n")
		b.WriteString(bodyStyle.Width(width).Render(m.state.GeneratedText))
	}

	if m.busy != "" {
		b.WriteString("\n" + noticeStyle.Render(m.busy))
	} else if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice))
	}
	if m.errText != "" {
		b.WriteString("\n" + errorStyle.Render(m.errText))
	}

	help := "q quit"
	if m.state != nil && m.state.AwaitingFeedback {
		help = "a/enter accept · r reject and reroll · esc/q close"
	}
	b.WriteString("\n" + helpStyle.Render(help))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Surface forwards reconciler presentation calls into a running program.
// Calls made before Bind are dropped.
type Surface struct {
	program atomic.Pointer[tea.Program]
}

// Bind attaches the program that receives future messages.
func (s *Surface) Bind(p *tea.Program) {
	s.program.Store(p)
}

// Show implements feedback.Surface.
func (s *Surface) Show(state feedback.SessionState) {
	if p := s.program.Load(); p != nil {
		p.Send(ShowMsg{State: state})
	}
}

// Notify implements feedback.Surface.
func (s *Surface) Notify(title, body string) {
	if p := s.program.Load(); p != nil {
		p.Send(NotifyMsg{Title: title, Body: body})
	}
}
