package store

import (
	"context"

	"github.com/backdesk/backdesk/internal/model"
)

// Store defines the local persistence interface: a mirror of recent
// notifications, the device's current push registration, and the
// last-known preference record for offline display.
type Store interface {
	// === Notifications ===

	UpsertNotifications(ctx context.Context, notifications []model.Notification) error
	GetNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64, read bool) error
	MarkAllNotificationsRead(ctx context.Context) error

	// === Push registration ===

	SavePushSubscription(ctx context.Context, sub model.PushSubscription) error
	GetPushSubscription(ctx context.Context) (*model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	// === Preferences mirror ===

	SavePreferences(ctx context.Context, prefs model.Preferences) error
	GetPreferences(ctx context.Context) (*model.Preferences, error)
}
