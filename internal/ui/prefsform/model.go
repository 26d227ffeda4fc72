package prefsform

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/backdesk/backdesk/internal/model"
	"github.com/backdesk/backdesk/internal/theme"
)

// SubmittedMsg is dispatched when the form completes. Patch carries
// only the fields the user actually changed; it is empty when nothing
// changed.
type SubmittedMsg struct {
	Patch model.PreferencesPatch
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	newLead     bool
	leadStatus  bool
	quoteStatus bool
	invoicePaid bool
	system      bool
	sound       bool
}

// Model is the preference edit form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	original model.Preferences
	width    int
	height   int
}

// New creates an inactive preference form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start initializes the form from the current record.
func (m *Model) Start(current model.Preferences) tea.Cmd {
	m.original = current
	m.fb.newLead = current.NewLeadEnabled
	m.fb.leadStatus = current.LeadStatusEnabled
	m.fb.quoteStatus = current.QuoteStatusEnabled
	m.fb.invoicePaid = current.InvoicePaidEnabled
	m.fb.system = current.SystemEnabled
	m.fb.sound = current.SoundEnabled
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the preference form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the preference form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Notification Preferences") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("New leads").
				Value(&m.fb.newLead),
			huh.NewConfirm().
				Title("Lead status changes").
				Value(&m.fb.leadStatus),
			huh.NewConfirm().
				Title("Quote status changes").
				Value(&m.fb.quoteStatus),
			huh.NewConfirm().
				Title("Invoice payments").
				Value(&m.fb.invoicePaid),
			huh.NewConfirm().
				Title("System messages").
				Value(&m.fb.system),
			huh.NewConfirm().
				Title("Notification sound").
				Value(&m.fb.sound),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// handleSubmit diffs the edited record against the original so the
// emitted patch carries only changed fields.
func (m Model) handleSubmit() tea.Cmd {
	edited := model.Preferences{
		NewLeadEnabled:     m.fb.newLead,
		LeadStatusEnabled:  m.fb.leadStatus,
		QuoteStatusEnabled: m.fb.quoteStatus,
		InvoicePaidEnabled: m.fb.invoicePaid,
		SystemEnabled:      m.fb.system,
		SoundEnabled:       m.fb.sound,
	}
	patch := model.Diff(m.original, edited)
	return func() tea.Msg { return SubmittedMsg{Patch: patch} }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}
