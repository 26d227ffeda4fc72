package feed

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/backdesk/backdesk/internal/keys"
	"github.com/backdesk/backdesk/internal/model"
	"github.com/backdesk/backdesk/internal/theme"
)

// OpenMsg is dispatched when the user activates a feed entry.
type OpenMsg struct {
	Notification model.Notification
}

// Model is the notification feed view: the retained entries newest
// first, with cursor navigation and unread markers.
type Model struct {
	items  []model.Notification
	cursor int
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates an empty feed view.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetItems replaces the feed contents, clamping the cursor.
func (m *Model) SetItems(items []model.Notification) {
	m.items = items
	if m.cursor >= len(items) {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Selected returns the entry under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	if len(m.items) == 0 {
		return model.Notification{}, false
	}
	return m.items[m.cursor], true
}

// Update handles navigation and selection keys.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(keyMsg, m.keys.Open):
		if selected, ok := m.Selected(); ok {
			return m, func() tea.Msg {
				return OpenMsg{Notification: selected}
			}
		}
	}
	return m, nil
}

// View renders the feed.
func (m Model) View() string {
	if len(m.items) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notifications yet.")
	}

	top, bottom := m.visibleRange()

	rows := make([]string, 0, bottom-top)
	for i := top; i < bottom; i++ {
		rows = append(rows, m.renderRow(i))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// visibleRange returns the window of entries that fits the viewport,
// kept scrolled so the cursor stays in view.
func (m Model) visibleRange() (int, int) {
	if m.height <= 0 {
		return 0, len(m.items)
	}

	top := 0
	if m.cursor >= m.height {
		top = m.cursor - m.height + 1
	}
	bottom := top + m.height
	if bottom > len(m.items) {
		bottom = len(m.items)
	}
	return top, bottom
}

func (m Model) renderRow(i int) string {
	n := m.items[i]

	marker := "  "
	if !n.Read {
		marker = theme.UnreadMarkerStyle.Render("● ")
	}

	label := theme.TypeLabelStyle(n.Type).Render(n.Type.Label())
	title := n.Title
	if !n.Read {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}
	age := theme.HelpStyle.Render(timeAgo(n.CreatedAt))

	row := lipgloss.JoinHorizontal(lipgloss.Top, marker, label, title, "  ", age)
	if i == m.cursor {
		return theme.SelectedItemStyle.Render(row)
	}
	return theme.ListItemStyle.Render(row)
}

// SetSize updates the feed dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// timeAgo formats a timestamp relative to now, coarsely.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
