package model

import "time"

// PushSubscription is a device registration for background push
// delivery. The server keys registrations by Endpoint, so re-submitting
// the same device is an idempotent upsert rather than a new row.
type PushSubscription struct {
	// Endpoint is the push service URL and the unique key.
	Endpoint string `json:"endpoint"`

	// P256DHKey is the client public key from the push registration.
	P256DHKey string `json:"p256dh_key"`

	// AuthKey is the shared auth secret from the push registration.
	AuthKey string `json:"auth_key"`

	// DeviceName is a human-readable label for this device.
	DeviceName string `json:"device_name"`

	// UserAgent identifies the client software that registered.
	UserAgent string `json:"user_agent"`

	// CreatedAt is when this device registered.
	CreatedAt time.Time `json:"created_at,omitempty"`
}
