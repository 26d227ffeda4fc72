package stream

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/model"
)

type readResult struct {
	data []byte
	err  error
}

// fakeTransport serves scripted frames and blocks in between, like a
// real socket.
type fakeTransport struct {
	reads chan readResult
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan readResult, 16)}
}

func (t *fakeTransport) serve(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	t.reads <- readResult{data: data}
}

func (t *fakeTransport) serveRaw(data string) {
	t.reads <- readResult{data: []byte(data)}
}

func (t *fakeTransport) fail(err error) {
	t.reads <- readResult{err: err}
}

func (t *fakeTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case r := <-t.reads:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Close() error { return nil }

type dialResult struct {
	transport *fakeTransport
	err       error
}

// fakeDialer pops one scripted result per dial and records the token
// each attempt carried. Past the end of the script it keeps failing.
type fakeDialer struct {
	mu     gosync.Mutex
	script []dialResult
	tokens []string
}

func (d *fakeDialer) Dial(ctx context.Context, url, token string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tokens = append(d.tokens, token)
	if len(d.script) == 0 {
		return nil, errors.New("no more scripted dials")
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.transport, nil
}

func (d *fakeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.tokens))
	copy(out, d.tokens)
	return out
}

type fakeTokens struct {
	mu         gosync.Mutex
	token      string
	refreshErr error
	refreshes  int
}

func (f *fakeTokens) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	f.token = "fresh"
	return f.token, nil
}

func (f *fakeTokens) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func newTestConn(dialer Dialer, tokens api.TokenSource) *Conn {
	return New("wss://example.com/notifications/stream/", tokens, Options{
		Dialer:     dialer,
		MinBackoff: time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
	})
}

func waitStatus(t *testing.T, c *Conn, want State) StatusMsg {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.statusCh:
			if msg.State == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitEvent(t *testing.T, c *Conn) model.Notification {
	t.Helper()

	select {
	case msg := <-c.eventCh:
		return msg.Notification
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a notification")
		return model.Notification{}
	}
}

func TestDeliversInboundNotifications(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []dialResult{{transport: transport}}}
	c := newTestConn(dialer, &fakeTokens{token: "tok"})
	t.Cleanup(c.Close)

	c.Open()
	waitStatus(t, c, StateConnected)

	transport.serve(model.Notification{ID: 7, Type: model.TypeNewLead, Title: "New lead"})

	got := waitEvent(t, c)
	if got.ID != 7 || got.Type != model.TypeNewLead {
		t.Fatalf("unexpected notification: %#v", got)
	}
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []dialResult{{transport: transport}}}
	c := newTestConn(dialer, &fakeTokens{token: "tok"})
	t.Cleanup(c.Close)

	c.Open()
	waitStatus(t, c, StateConnected)

	transport.serveRaw(`{"id": not json`)
	transport.serveRaw(`{"title": "no id"}`)
	transport.serve(model.Notification{ID: 3, Type: model.TypeSystem, Title: "ok"})

	got := waitEvent(t, c)
	if got.ID != 3 {
		t.Fatalf("expected the frame after the malformed ones, got id %d", got.ID)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %s, want connected", c.State())
	}
}

func TestReconnectsWithDoublingBackoff(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []dialResult{
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{transport: transport},
	}}
	c := newTestConn(dialer, &fakeTokens{token: "tok"})
	t.Cleanup(c.Close)

	c.Open()

	var delays []time.Duration
	deadline := time.After(2 * time.Second)
	for len(delays) < 3 {
		select {
		case msg := <-c.statusCh:
			if msg.State == StateBackoff {
				delays = append(delays, msg.RetryIn)
			}
		case <-deadline:
			t.Fatal("timed out collecting backoff transitions")
		}
	}
	waitStatus(t, c, StateConnected)

	want := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}
	for i, d := range want {
		if delays[i] != d {
			t.Fatalf("backoff %d = %s, want %s", i, delays[i], d)
		}
	}
}

func TestBackoffIsCappedAndResetsOnConnect(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []dialResult{
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{transport: transport},
	}}
	c := newTestConn(dialer, &fakeTokens{token: "tok"})
	t.Cleanup(c.Close)

	c.Open()

	var delays []time.Duration
	deadline := time.After(2 * time.Second)
	for len(delays) < 4 {
		select {
		case msg := <-c.statusCh:
			if msg.State == StateBackoff {
				delays = append(delays, msg.RetryIn)
			}
		case <-deadline:
			t.Fatal("timed out collecting backoff transitions")
		}
	}
	// Fourth delay stays at the 4ms cap.
	if delays[3] != 4*time.Millisecond {
		t.Fatalf("capped delay = %s, want 4ms", delays[3])
	}
	waitStatus(t, c, StateConnected)

	// A drop after a successful connect starts over at the minimum.
	transport.fail(errors.New("connection reset"))
	msg := waitStatus(t, c, StateBackoff)
	if msg.RetryIn != time.Millisecond {
		t.Fatalf("delay after reconnect = %s, want 1ms", msg.RetryIn)
	}
}

func TestRefreshesOnceOnRejectedDial(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []dialResult{
		{err: &DialRejectedError{StatusCode: 401}},
		{transport: transport},
	}}
	tokens := &fakeTokens{token: "stale"}
	c := newTestConn(dialer, tokens)
	t.Cleanup(c.Close)

	c.Open()
	waitStatus(t, c, StateConnected)

	attempts := dialer.dials()
	if len(attempts) != 2 || attempts[0] != "stale" || attempts[1] != "fresh" {
		t.Fatalf("dial tokens = %v, want [stale fresh]", attempts)
	}
	if tokens.refreshCount() != 1 {
		t.Fatalf("refreshes = %d, want 1", tokens.refreshCount())
	}
}

func TestSecondRejectionIsTerminal(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{
		{err: &DialRejectedError{StatusCode: 401}},
		{err: &DialRejectedError{StatusCode: 403}},
	}}
	c := newTestConn(dialer, &fakeTokens{token: "stale"})
	t.Cleanup(c.Close)

	c.Open()
	msg := waitStatus(t, c, StateAuthRejected)

	if !api.IsAuthError(msg.Err) {
		t.Fatalf("expected AuthError, got %v", msg.Err)
	}
	// Terminal: no further dial attempts happen.
	time.Sleep(20 * time.Millisecond)
	if n := len(dialer.dials()); n != 2 {
		t.Fatalf("dials = %d, want 2", n)
	}
	if c.State() != StateAuthRejected {
		t.Fatalf("state = %s, want auth-rejected", c.State())
	}
}

func TestFailedRefreshIsTerminal(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{
		{err: &DialRejectedError{StatusCode: 401}},
	}}
	tokens := &fakeTokens{
		token:      "stale",
		refreshErr: &api.AuthError{Message: "refresh rejected"},
	}
	c := newTestConn(dialer, tokens)
	t.Cleanup(c.Close)

	c.Open()
	msg := waitStatus(t, c, StateAuthRejected)

	if !api.IsAuthError(msg.Err) {
		t.Fatalf("expected AuthError, got %v", msg.Err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []dialResult{{transport: transport}}}
	c := newTestConn(dialer, &fakeTokens{token: "tok"})

	c.Open()
	waitStatus(t, c, StateConnected)

	c.Close()
	waitStatus(t, c, StateDisconnected)
	c.Close()

	if c.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", c.State())
	}
}
