package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/logging"
	"github.com/backdesk/backdesk/internal/model"
)

// State is the connection lifecycle state of the live channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateAuthRejected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateAuthRejected:
		return "auth-rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NotificationMsg is a tea.Msg carrying one inbound notification frame.
type NotificationMsg struct {
	Notification model.Notification
}

// StatusMsg is a tea.Msg sent on every state transition. RetryIn is set
// only for StateBackoff.
type StatusMsg struct {
	State   State
	Err     error
	RetryIn time.Duration
}

// DialRejectedError is a handshake refused by the server with an HTTP
// status, as opposed to a transport failure.
type DialRejectedError struct {
	StatusCode int
}

func (e *DialRejectedError) Error() string {
	return fmt.Sprintf("stream dial rejected (%d)", e.StatusCode)
}

// Transport is one established connection. ReadMessage blocks until the
// next frame, an error, or ctx cancellation.
type Transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer establishes a Transport. The default is the WebSocket dialer;
// tests inject their own.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Transport, error)
}

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Options configures a Conn. Zero values select the defaults.
type Options struct {
	Dialer     Dialer
	Logger     *logrus.Logger
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Conn manages the live notification channel: it dials, reads frames,
// and reconnects with capped exponential backoff. Inbound notifications
// and state transitions surface to the Bubble Tea runtime as messages
// on buffered channels, consumed through the Wait* commands.
type Conn struct {
	url        string
	tokens     api.TokenSource
	dialer     Dialer
	logger     *logrus.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	eventCh  chan NotificationMsg
	statusCh chan StatusMsg

	mu      gosync.Mutex
	state   State
	running bool
	cancel  context.CancelFunc
}

// New creates a connection manager for the given stream URL. It does
// not dial until Open is called.
func New(url string, tokens api.TokenSource, opts Options) *Conn {
	if opts.Dialer == nil {
		opts.Dialer = &WebSocketDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return &Conn{
		url:        url,
		tokens:     tokens,
		dialer:     opts.Dialer,
		logger:     opts.Logger,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		eventCh:    make(chan NotificationMsg, 64),
		statusCh:   make(chan StatusMsg, 16),
	}
}

// Open starts the connection loop and returns the subscription commands
// for the event and status channels. Calling Open while the loop is
// already running is a no-op; after Close or an auth rejection it starts
// a fresh loop.
func (c *Conn) Open() tea.Cmd {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)

	return tea.Batch(c.WaitForEvent(), c.WaitForStatus())
}

// Close stops the connection loop, cancelling any in-flight dial or
// pending backoff timer. It is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.cancel()
	c.running = false
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitForEvent returns a tea.Cmd that blocks for the next inbound
// notification. Re-issue it after handling each NotificationMsg.
func (c *Conn) WaitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-c.eventCh
	}
}

// WaitForStatus returns a tea.Cmd that blocks for the next state
// transition. Re-issue it after handling each StatusMsg.
func (c *Conn) WaitForStatus() tea.Cmd {
	return func() tea.Msg {
		return <-c.statusCh
	}
}

// run is the connection loop: dial, read until the connection drops,
// back off, repeat. It exits on ctx cancellation or a terminal auth
// rejection.
func (c *Conn) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	delay := c.minBackoff
	refreshed := false

	for {
		c.setState(ctx, StatusMsg{State: StateConnecting})

		token, err := c.tokens.Token()
		if err != nil {
			c.setState(ctx, StatusMsg{
				State: StateAuthRejected,
				Err:   &api.AuthError{Message: "no access token available"},
			})
			return
		}

		transport, err := c.dialer.Dial(ctx, c.url, token)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(ctx, StatusMsg{State: StateDisconnected})
				return
			}

			var rejected *DialRejectedError
			if errors.As(err, &rejected) &&
				(rejected.StatusCode == 401 || rejected.StatusCode == 403) {
				if refreshed {
					c.setState(ctx, StatusMsg{
						State: StateAuthRejected,
						Err:   &api.AuthError{Message: rejected.Error()},
					})
					return
				}
				refreshed = true
				if _, refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
					c.setState(ctx, StatusMsg{State: StateAuthRejected, Err: refreshErr})
					return
				}
				c.logger.Info("stream credential refreshed, redialing")
				continue
			}

			c.logger.WithError(err).Warn("stream dial failed")
			if !c.backoff(ctx, &delay, err) {
				return
			}
			continue
		}

		refreshed = false
		delay = c.minBackoff
		c.setState(ctx, StatusMsg{State: StateConnected})

		readErr := c.readLoop(ctx, transport)
		transport.Close()

		if ctx.Err() != nil {
			c.setState(ctx, StatusMsg{State: StateDisconnected})
			return
		}

		c.logger.WithError(readErr).Warn("stream connection dropped")
		if !c.backoff(ctx, &delay, readErr) {
			return
		}
	}
}

// readLoop consumes frames until the connection fails. Frames that do
// not decode as a notification are logged and skipped; the connection
// stays up.
func (c *Conn) readLoop(ctx context.Context, transport Transport) error {
	for {
		data, err := transport.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var notification model.Notification
		if err := json.Unmarshal(data, &notification); err != nil {
			c.logger.WithError(err).Warn("skipping malformed stream frame")
			continue
		}
		if notification.ID == 0 {
			c.logger.Warn("skipping stream frame without an id")
			continue
		}

		select {
		case c.eventCh <- NotificationMsg{Notification: notification}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff announces StateBackoff, sleeps the current delay, and doubles
// it up to the cap. It reports false when ctx was cancelled while
// waiting.
func (c *Conn) backoff(ctx context.Context, delay *time.Duration, cause error) bool {
	c.setState(ctx, StatusMsg{State: StateBackoff, Err: cause, RetryIn: *delay})

	timer := time.NewTimer(*delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.setState(ctx, StatusMsg{State: StateDisconnected})
		return false
	case <-timer.C:
	}

	*delay *= 2
	if *delay > c.maxBackoff {
		*delay = c.maxBackoff
	}
	return true
}

func (c *Conn) setState(ctx context.Context, msg StatusMsg) {
	c.mu.Lock()
	c.state = msg.State
	c.mu.Unlock()

	select {
	case c.statusCh <- msg:
	case <-ctx.Done():
		// Shutdown in progress; the consumer may be gone.
		select {
		case c.statusCh <- msg:
		default:
		}
	}
}
