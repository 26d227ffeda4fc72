package push

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/logging"
	"github.com/backdesk/backdesk/internal/model"
)

// ErrUnsupported means the platform has no push capability at all.
var ErrUnsupported = errors.New("push notifications are not supported on this platform")

// ErrPermissionDenied means the user refused the permission prompt. No
// server call is made after a denial.
var ErrPermissionDenied = errors.New("notification permission denied")

// Registration is what the platform hands back after a successful
// subscribe: the delivery endpoint plus the client encryption keys.
type Registration struct {
	Endpoint  string
	P256DHKey string
	AuthKey   string
}

// Platform is the device-level push capability. The manager never
// touches platform primitives directly, so a desktop build, a test, and
// a headless build can each supply their own.
type Platform interface {
	Supported() bool
	RequestPermission(ctx context.Context) error
	Subscribe(ctx context.Context, serverKey []byte) (Registration, error)
	Unsubscribe(ctx context.Context, endpoint string) error
}

// Remote is the server surface for subscription upkeep.
type Remote interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	SubscribePush(ctx context.Context, sub model.PushSubscription) error
	UnsubscribePush(ctx context.Context, endpoint string) error
}

// Registry persists the device's current registration locally.
type Registry interface {
	SavePushSubscription(ctx context.Context, sub model.PushSubscription) error
	GetPushSubscription(ctx context.Context) (*model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Options configures a Manager.
type Options struct {
	DeviceName string
	UserAgent  string
	Logger     *logrus.Logger
}

// Manager drives the push subscription lifecycle: permission, key
// exchange, server upsert, and the locally persisted registration row.
type Manager struct {
	platform   Platform
	remote     Remote
	registry   Registry
	logger     *logrus.Logger
	deviceName string
	userAgent  string
}

// NewManager creates a push manager. registry and logger may be nil.
func NewManager(platform Platform, remote Remote, registry Registry, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		platform:   platform,
		remote:     remote,
		registry:   registry,
		logger:     logger,
		deviceName: opts.DeviceName,
		userAgent:  opts.UserAgent,
	}
}

// Subscribe walks the full flow: capability check, permission prompt,
// server key fetch, platform registration, server upsert keyed by
// endpoint, local row. Repeating it for an already-registered endpoint
// updates the existing server record rather than creating a duplicate.
func (m *Manager) Subscribe(ctx context.Context) (model.PushSubscription, error) {
	if !m.platform.Supported() {
		return model.PushSubscription{}, ErrUnsupported
	}

	if err := m.platform.RequestPermission(ctx); err != nil {
		return model.PushSubscription{}, err
	}

	rawKey, err := m.remote.VAPIDPublicKey(ctx)
	if err != nil {
		return model.PushSubscription{}, fmt.Errorf("fetching server key: %w", err)
	}
	serverKey, err := decodeServerKey(rawKey)
	if err != nil {
		return model.PushSubscription{}, err
	}

	registration, err := m.platform.Subscribe(ctx, serverKey)
	if err != nil {
		return model.PushSubscription{}, fmt.Errorf("platform subscribe: %w", err)
	}

	sub := model.PushSubscription{
		Endpoint:   registration.Endpoint,
		P256DHKey:  registration.P256DHKey,
		AuthKey:    registration.AuthKey,
		DeviceName: m.deviceName,
		UserAgent:  m.userAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.remote.SubscribePush(ctx, sub); err != nil {
		return model.PushSubscription{}, fmt.Errorf("registering subscription: %w", err)
	}

	if m.registry != nil {
		if err := m.registry.SavePushSubscription(ctx, sub); err != nil {
			m.logger.WithError(err).Warn("persisting push registration failed")
		}
	}
	return sub, nil
}

// Unsubscribe cancels the platform registration and removes the server
// record. Without a local registration row it is a no-op. A 404 from
// the server means the record is already gone and counts as success.
func (m *Manager) Unsubscribe(ctx context.Context) error {
	if m.registry == nil {
		return nil
	}
	row, err := m.registry.GetPushSubscription(ctx)
	if err != nil {
		return fmt.Errorf("reading push registration: %w", err)
	}
	if row == nil {
		return nil
	}

	if err := m.platform.Unsubscribe(ctx, row.Endpoint); err != nil {
		return fmt.Errorf("platform unsubscribe: %w", err)
	}

	if err := m.remote.UnsubscribePush(ctx, row.Endpoint); err != nil && !api.IsNotFound(err) {
		return fmt.Errorf("removing subscription: %w", err)
	}

	if err := m.registry.DeletePushSubscription(ctx, row.Endpoint); err != nil {
		m.logger.WithError(err).Warn("removing local push registration failed")
	}
	return nil
}

// Status returns the locally persisted registration, or nil when this
// device is not subscribed.
func (m *Manager) Status(ctx context.Context) (*model.PushSubscription, error) {
	if m.registry == nil {
		return nil, nil
	}
	return m.registry.GetPushSubscription(ctx)
}

// decodeServerKey decodes the base64url VAPID public key, with or
// without padding.
func decodeServerKey(raw string) ([]byte, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "=")
	if trimmed == "" {
		return nil, errors.New("server returned an empty vapid key")
	}
	key, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decoding vapid key: %w", err)
	}
	return key, nil
}
