package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/keys"
	"github.com/backdesk/backdesk/internal/logging"
	"github.com/backdesk/backdesk/internal/model"
	"github.com/backdesk/backdesk/internal/notify"
	"github.com/backdesk/backdesk/internal/push"
	"github.com/backdesk/backdesk/internal/stream"
	"github.com/backdesk/backdesk/internal/ui"
	"github.com/backdesk/backdesk/internal/ui/feed"
	helpview "github.com/backdesk/backdesk/internal/ui/help"
	"github.com/backdesk/backdesk/internal/ui/prefsform"
	"github.com/backdesk/backdesk/internal/ui/toast"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewFeed ViewState = iota
	ViewPrefs
	ViewHelp
)

// refetchDoneMsg reports the result of a full list refetch.
type refetchDoneMsg struct {
	err error
}

// prefsLoadedMsg reports the result of the initial preference load.
type prefsLoadedMsg struct {
	err error
}

// prefsSavedMsg reports the result of a preference update.
type prefsSavedMsg struct {
	err error
}

// readMarkedMsg reports the result of a mark-read or mark-all-read.
type readMarkedMsg struct {
	err error
}

// pushChangedMsg reports the result of a subscribe or unsubscribe.
type pushChangedMsg struct {
	subscribed bool
	err        error
}

// Deps bundles the services the root model is wired to.
type Deps struct {
	Store      *notify.Store
	Prefs      *notify.Prefs
	Conn       *stream.Conn
	Push       *push.Manager
	Logger     *logrus.Logger
	WebBaseURL string
}

// Model is the root Bubble Tea model that manages view routing, layout,
// and the wiring between the live channel, the notification store, the
// preference gate, and the toast overlay.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	feed         feed.Model
	helpView     helpview.Model
	prefsForm    prefsform.Model
	toast        toast.Model

	store  *notify.Store
	prefs  *notify.Prefs
	conn   *stream.Conn
	push   *push.Manager
	logger *logrus.Logger

	webBaseURL string
	connState  stream.State
	retryIn    string
	notice     string
	ready      bool
}

// New creates the root application model.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return Model{
		currentView: ViewFeed,
		keys:        k,
		feed:        feed.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		prefsForm:   prefsform.New(80, 24),
		toast:       toast.New(80),
		store:       deps.Store,
		prefs:       deps.Prefs,
		conn:        deps.Conn,
		push:        deps.Push,
		logger:      logger,
		webBaseURL:  deps.WebBaseURL,
		connState:   stream.StateDisconnected,
	}
}

// Init loads the preference record, fetches the initial notification
// snapshot, and opens the live channel.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadPrefs(),
		m.refetch(),
		m.conn.Open(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.feed.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.prefsForm.SetSize(contentWidth, contentHeight)
		m.toast.SetSize(contentWidth)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case stream.NotificationMsg:
		return m.handleNotification(msg.Notification)

	case stream.StatusMsg:
		return m.handleStreamStatus(msg)

	case refetchDoneMsg:
		if msg.err != nil {
			m.logger.WithError(msg.err).Warn("refetch failed")
			m.notice = "refresh failed: " + msg.err.Error()
		} else {
			m.notice = ""
		}
		m.feed.SetItems(m.store.Notifications())
		return m, nil

	case prefsLoadedMsg:
		if msg.err != nil {
			m.logger.WithError(msg.err).Warn("loading preferences failed")
			m.notice = "preferences unavailable, using last known settings"
		}
		return m, nil

	case prefsSavedMsg:
		if msg.err != nil {
			m.notice = "saving preferences failed: " + msg.err.Error()
		} else {
			m.notice = ""
		}
		return m, nil

	case readMarkedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		m.feed.SetItems(m.store.Notifications())
		return m, nil

	case pushChangedMsg:
		return m.handlePushChanged(msg)

	case feed.OpenMsg:
		return m, tea.Batch(
			m.markRead(msg.Notification.ID),
			m.openURL(msg.Notification.NavigationURL()),
		)

	case toast.NavigateMsg:
		return m, m.openURL(msg.URL)

	case prefsform.SubmittedMsg:
		m.currentView = ViewFeed
		return m, m.savePrefs(msg.Patch)

	case prefsform.CancelMsg:
		m.currentView = ViewFeed
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.toast, cmd = m.toast.Update(msg)
	if cmd != nil {
		return m, cmd
	}
	return m.updateActiveView(msg)
}

// handleNotification ingests an inbound event and, when its category is
// enabled, surfaces it as a toast with an optional terminal bell.
func (m Model) handleNotification(n model.Notification) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.conn.WaitForEvent()}

	if m.store.Ingest(n) {
		m.feed.SetItems(m.store.Notifications())
		if m.prefs.Allows(n.Type) {
			cmds = append(cmds, m.toast.Show(n))
			if m.prefs.SoundEnabled() {
				cmds = append(cmds, ringBell)
			}
		}
	}
	return m, tea.Batch(cmds...)
}

// handleStreamStatus tracks connection state for the header and kicks
// off a reconciliation refetch whenever the channel comes (back) up.
func (m Model) handleStreamStatus(msg stream.StatusMsg) (tea.Model, tea.Cmd) {
	previous := m.connState
	m.connState = msg.State
	m.retryIn = ""

	cmds := []tea.Cmd{m.conn.WaitForStatus()}

	switch msg.State {
	case stream.StateConnected:
		if previous != stream.StateConnected {
			cmds = append(cmds, m.refetch())
		}
	case stream.StateBackoff:
		m.retryIn = msg.RetryIn.String()
	case stream.StateAuthRejected:
		if msg.Err != nil {
			m.notice = msg.Err.Error()
		} else {
			m.notice = "authentication rejected"
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handlePushChanged(msg pushChangedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.notice = msg.err.Error()
		return m, nil
	}
	if msg.subscribed {
		m.notice = "push notifications enabled for this device"
	} else {
		m.notice = "push notifications disabled for this device"
	}
	return m, nil
}

// handleKey processes global keybindings, then delegates to the active
// view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The toast swallows its own keys while visible.
	if m.toast.Visible() {
		switch {
		case key.Matches(msg, m.keys.Open):
			return m, m.toast.Activate()
		case key.Matches(msg, m.keys.Dismiss):
			m.toast.Dismiss()
			return m, nil
		}
	}

	// The preference form owns the keyboard while active.
	if m.currentView == ViewPrefs {
		return m.updateActiveView(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.conn.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.currentView != ViewFeed {
			m.currentView = ViewFeed
			return m, nil
		}

	case key.Matches(msg, m.keys.Preferences):
		if m.currentView == ViewFeed {
			m.previousView = m.currentView
			m.currentView = ViewPrefs
			return m, m.prefsForm.Start(m.prefs.Current())
		}

	case key.Matches(msg, m.keys.Refresh):
		if m.currentView == ViewFeed {
			return m, m.refetch()
		}

	case key.Matches(msg, m.keys.MarkRead):
		if m.currentView == ViewFeed {
			if selected, ok := m.feed.Selected(); ok {
				return m, m.markRead(selected.ID)
			}
		}

	case key.Matches(msg, m.keys.MarkAllRead):
		if m.currentView == ViewFeed {
			return m, m.markAllRead()
		}

	case key.Matches(msg, m.keys.Subscribe):
		if m.currentView == ViewFeed {
			return m, m.subscribePush()
		}

	case key.Matches(msg, m.keys.Unsubscribe):
		if m.currentView == ViewFeed {
			return m, m.unsubscribePush()
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewFeed:
		m.feed, cmd = m.feed.Update(msg)
	case ViewPrefs:
		m.prefsForm, cmd = m.prefsForm.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "backdesk"
	if unread := m.store.UnreadCount(); unread > 0 {
		headerTitle = fmt.Sprintf("backdesk [%d unread]", unread)
	}
	header := m.layout.RenderHeader(headerTitle, m.connStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	frame := m.layout.RenderWithFrame(header, content, statusBar)
	return m.layout.OverlayToast(frame, m.toast.View())
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewFeed:
		return m.feed.View()
	case ViewPrefs:
		return m.prefsForm.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// connStatus returns a short string describing the live channel state.
func (m Model) connStatus() string {
	switch m.connState {
	case stream.StateConnected:
		return "● live"
	case stream.StateConnecting:
		return "… connecting"
	case stream.StateBackoff:
		if m.retryIn != "" {
			return "offline, retry in " + m.retryIn
		}
		return "offline"
	case stream.StateAuthRejected:
		return "auth required"
	default:
		return "offline"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.notice != "" && m.currentView == ViewFeed {
		return m.notice
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewPrefs:
		return "enter submit | esc cancel"
	default:
		return "q quit | ? help | m read | M read all | r refetch | p prefs | s/u push"
	}
}

// loadPrefs fetches the preference record once at startup.
func (m Model) loadPrefs() tea.Cmd {
	prefs := m.prefs
	return func() tea.Msg {
		return prefsLoadedMsg{err: prefs.Load(context.Background())}
	}
}

// savePrefs patches the changed preference fields.
func (m Model) savePrefs(patch model.PreferencesPatch) tea.Cmd {
	prefs := m.prefs
	return func() tea.Msg {
		return prefsSavedMsg{err: prefs.Update(context.Background(), patch)}
	}
}

// refetch replaces the store contents with a fresh server snapshot.
func (m Model) refetch() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		return refetchDoneMsg{err: store.Refetch(context.Background())}
	}
}

// markRead flips one entry's read flag with remote confirmation.
func (m Model) markRead(id int64) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		return readMarkedMsg{err: store.MarkAsRead(context.Background(), id)}
	}
}

// markAllRead flips every unread entry with remote confirmation.
func (m Model) markAllRead() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		return readMarkedMsg{err: store.MarkAllAsRead(context.Background())}
	}
}

func (m Model) subscribePush() tea.Cmd {
	mgr := m.push
	return func() tea.Msg {
		_, err := mgr.Subscribe(context.Background())
		return pushChangedMsg{subscribed: true, err: err}
	}
}

func (m Model) unsubscribePush() tea.Cmd {
	mgr := m.push
	return func() tea.Msg {
		return pushChangedMsg{subscribed: false, err: mgr.Unsubscribe(context.Background())}
	}
}
