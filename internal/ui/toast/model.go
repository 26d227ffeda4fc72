package toast

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/backdesk/backdesk/internal/model"
	"github.com/backdesk/backdesk/internal/theme"
)

// visibleFor is how long a toast stays up without interaction.
const visibleFor = 5 * time.Second

// NavigateMsg is dispatched when the user activates the toast and the
// notification carries a navigation url.
type NavigateMsg struct {
	URL string
}

// expiredMsg is the auto-dismiss timer firing. The sequence number ties
// it to the toast that scheduled it.
type expiredMsg struct {
	seq int
}

// Model is the transient single-notification overlay. Only one toast is
// shown at a time; a newer notification replaces the current one and
// restarts the clock.
type Model struct {
	current model.Notification
	seq     int
	visible bool
	width   int
	ttl     time.Duration
}

// New creates a hidden toast model.
func New(width int) Model {
	return Model{
		width: width,
		ttl:   visibleFor,
	}
}

// Show displays the notification, replacing any current toast, and
// returns the auto-dismiss timer command. The sequence number makes
// the previous toast's still-pending timer a no-op.
func (m *Model) Show(n model.Notification) tea.Cmd {
	m.seq++
	m.current = n
	m.visible = true

	seq := m.seq
	return tea.Tick(m.ttl, func(time.Time) tea.Msg {
		return expiredMsg{seq: seq}
	})
}

// Update handles the dismiss timer.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if expired, ok := msg.(expiredMsg); ok {
		if expired.seq == m.seq {
			m.visible = false
		}
	}
	return m, nil
}

// Dismiss hides the toast without navigating.
func (m *Model) Dismiss() {
	m.visible = false
}

// Activate dismisses the toast and returns the navigation command when
// the notification carries a url.
func (m *Model) Activate() tea.Cmd {
	if !m.visible {
		return nil
	}
	m.visible = false

	url := m.current.NavigationURL()
	if url == "" {
		return nil
	}
	return func() tea.Msg {
		return NavigateMsg{URL: url}
	}
}

// Visible reports whether a toast is currently shown.
func (m Model) Visible() bool {
	return m.visible
}

// Current returns the notification being shown.
func (m Model) Current() model.Notification {
	return m.current
}

// View renders the toast box, or an empty string when hidden.
func (m Model) View() string {
	if !m.visible {
		return ""
	}

	label := theme.TypeLabelStyle(m.current.Type).Render(m.current.Type.Label())
	title := theme.PriorityStyle(m.current.Priority).Render(m.current.Title)

	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, label, title)}
	if m.current.Message != "" {
		lines = append(lines, m.current.Message)
	}
	lines = append(lines, theme.HelpStyle.Render("enter open · x dismiss"))

	maxWidth := m.width / 2
	if maxWidth < 30 {
		maxWidth = 30
	}
	return theme.ToastStyle.
		MaxWidth(maxWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the toast dimensions.
func (m *Model) SetSize(width int) {
	m.width = width
}
