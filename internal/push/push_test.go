package push

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/model"
)

type fakePlatform struct {
	supported    bool
	permErr      error
	subErr       error
	registration Registration
	permCalls    int
	subCalls     int
	unsubCalls   int
	gotServerKey []byte
}

func (p *fakePlatform) Supported() bool { return p.supported }

func (p *fakePlatform) RequestPermission(ctx context.Context) error {
	p.permCalls++
	return p.permErr
}

func (p *fakePlatform) Subscribe(ctx context.Context, serverKey []byte) (Registration, error) {
	p.subCalls++
	p.gotServerKey = serverKey
	if p.subErr != nil {
		return Registration{}, p.subErr
	}
	return p.registration, nil
}

func (p *fakePlatform) Unsubscribe(ctx context.Context, endpoint string) error {
	p.unsubCalls++
	return nil
}

type fakePushRemote struct {
	vapidKey       string
	subscribeErr   error
	unsubscribeErr error
	vapidCalls     int
	subscribeCalls int
	lastSub        model.PushSubscription
	lastEndpoint   string
}

func (r *fakePushRemote) VAPIDPublicKey(ctx context.Context) (string, error) {
	r.vapidCalls++
	return r.vapidKey, nil
}

func (r *fakePushRemote) SubscribePush(ctx context.Context, sub model.PushSubscription) error {
	r.subscribeCalls++
	if r.subscribeErr != nil {
		return r.subscribeErr
	}
	r.lastSub = sub
	return nil
}

func (r *fakePushRemote) UnsubscribePush(ctx context.Context, endpoint string) error {
	r.lastEndpoint = endpoint
	return r.unsubscribeErr
}

type fakeRegistry struct {
	row *model.PushSubscription
}

func (f *fakeRegistry) SavePushSubscription(ctx context.Context, sub model.PushSubscription) error {
	f.row = &sub
	return nil
}

func (f *fakeRegistry) GetPushSubscription(ctx context.Context) (*model.PushSubscription, error) {
	return f.row, nil
}

func (f *fakeRegistry) DeletePushSubscription(ctx context.Context, endpoint string) error {
	f.row = nil
	return nil
}

// "hello world!" in unpadded base64url.
const testServerKey = "aGVsbG8gd29ybGQh"

func newTestManager(platform *fakePlatform, remote *fakePushRemote, registry *fakeRegistry) *Manager {
	return NewManager(platform, remote, registry, Options{
		DeviceName: "office-desktop",
		UserAgent:  "backdesk/1.0",
	})
}

func TestSubscribeUnsupportedFailsFast(t *testing.T) {
	platform := &fakePlatform{supported: false}
	remote := &fakePushRemote{vapidKey: testServerKey}
	m := newTestManager(platform, remote, &fakeRegistry{})

	_, err := m.Subscribe(context.Background())

	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if platform.permCalls != 0 {
		t.Fatal("permission prompt shown on an unsupported platform")
	}
	if remote.vapidCalls != 0 || remote.subscribeCalls != 0 {
		t.Fatal("server contacted despite missing capability")
	}
}

func TestSubscribeDeniedPermissionSkipsServer(t *testing.T) {
	platform := &fakePlatform{supported: true, permErr: ErrPermissionDenied}
	remote := &fakePushRemote{vapidKey: testServerKey}
	m := newTestManager(platform, remote, &fakeRegistry{})

	_, err := m.Subscribe(context.Background())

	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if remote.vapidCalls != 0 || remote.subscribeCalls != 0 {
		t.Fatal("server contacted after a denied permission")
	}
	if platform.subCalls != 0 {
		t.Fatal("platform subscribe attempted after a denied permission")
	}
}

func TestSubscribeRegistersEndpoint(t *testing.T) {
	platform := &fakePlatform{
		supported: true,
		registration: Registration{
			Endpoint:  "https://push.example.com/send/abc",
			P256DHKey: "p256dh",
			AuthKey:   "auth",
		},
	}
	remote := &fakePushRemote{vapidKey: testServerKey}
	registry := &fakeRegistry{}
	m := newTestManager(platform, remote, registry)

	sub, err := m.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if !bytes.Equal(platform.gotServerKey, []byte("hello world!")) {
		t.Fatalf("server key not decoded from base64url: %q", platform.gotServerKey)
	}
	if remote.lastSub.Endpoint != "https://push.example.com/send/abc" {
		t.Fatalf("unexpected upserted endpoint: %q", remote.lastSub.Endpoint)
	}
	if remote.lastSub.DeviceName != "office-desktop" || remote.lastSub.UserAgent != "backdesk/1.0" {
		t.Fatalf("device metadata missing from upsert: %#v", remote.lastSub)
	}
	if registry.row == nil || registry.row.Endpoint != sub.Endpoint {
		t.Fatalf("registration row not persisted: %#v", registry.row)
	}
}

func TestSubscribeAcceptsPaddedServerKey(t *testing.T) {
	platform := &fakePlatform{supported: true}
	remote := &fakePushRemote{vapidKey: "aGk="} // "hi" with padding
	m := newTestManager(platform, remote, &fakeRegistry{})

	if _, err := m.Subscribe(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !bytes.Equal(platform.gotServerKey, []byte("hi")) {
		t.Fatalf("padded key decoded to %q", platform.gotServerKey)
	}
}

func TestUnsubscribeWithoutRegistrationIsNoOp(t *testing.T) {
	platform := &fakePlatform{supported: true}
	remote := &fakePushRemote{}
	m := newTestManager(platform, remote, &fakeRegistry{})

	if err := m.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.unsubCalls != 0 || remote.lastEndpoint != "" {
		t.Fatal("unsubscribe acted without a registration")
	}
}

func TestUnsubscribeTolerates404(t *testing.T) {
	platform := &fakePlatform{supported: true}
	remote := &fakePushRemote{
		unsubscribeErr: &api.APIError{StatusCode: 404, Message: "unknown endpoint"},
	}
	registry := &fakeRegistry{row: &model.PushSubscription{
		Endpoint: "https://push.example.com/send/abc",
	}}
	m := newTestManager(platform, remote, registry)

	if err := m.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("404 on delete should count as success, got %v", err)
	}
	if registry.row != nil {
		t.Fatal("local registration row not removed")
	}
}

func TestUnsubscribeKeepsRowOnServerFailure(t *testing.T) {
	platform := &fakePlatform{supported: true}
	remote := &fakePushRemote{
		unsubscribeErr: &api.APIError{StatusCode: 500, Message: "boom"},
	}
	registry := &fakeRegistry{row: &model.PushSubscription{
		Endpoint: "https://push.example.com/send/abc",
	}}
	m := newTestManager(platform, remote, registry)

	if err := m.Unsubscribe(context.Background()); err == nil {
		t.Fatal("expected the server failure to surface")
	}
	if registry.row == nil {
		t.Fatal("row removed despite failed server delete")
	}
}

func TestStatusReportsLocalRegistration(t *testing.T) {
	registry := &fakeRegistry{}
	m := newTestManager(&fakePlatform{supported: true}, &fakePushRemote{}, registry)

	got, err := m.Status(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected no registration, got %#v (%v)", got, err)
	}

	registry.row = &model.PushSubscription{Endpoint: "https://push.example.com/send/abc"}
	got, err = m.Status(context.Background())
	if err != nil || got == nil || got.Endpoint != registry.row.Endpoint {
		t.Fatalf("unexpected status: %#v (%v)", got, err)
	}
}
