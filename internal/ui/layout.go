package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/backdesk/backdesk/internal/theme"
)

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar with the title on the left
// and the connection/unread summary on the right.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}

// OverlayToast places the toast box in the top-right corner of the
// frame, replacing the lines it covers. An empty toast returns the
// frame unchanged.
func (l Layout) OverlayToast(frame, toast string) string {
	if toast == "" {
		return frame
	}

	frameLines := strings.Split(frame, "\n")
	toastLines := strings.Split(toast, "\n")
	toastWidth := lipgloss.Width(toast)

	// Keep the header visible; the toast starts on the line below it.
	offset := l.HeaderHeight
	for i, line := range toastLines {
		row := offset + i
		if row >= len(frameLines) {
			break
		}
		pad := l.Width - toastWidth
		if pad < 0 {
			pad = 0
		}
		frameLines[row] = lipgloss.NewStyle().
			Width(pad).
			MaxWidth(pad).
			Render(ansiTruncate(frameLines[row], pad)) + line
	}
	return strings.Join(frameLines, "\n")
}

// ansiTruncate cuts a rendered line down to width cells, preserving it
// unchanged when it already fits.
func ansiTruncate(line string, width int) string {
	if lipgloss.Width(line) <= width {
		return line
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}
