package model

import "time"

// NotificationType identifies the back-office event category that
// produced a notification.
type NotificationType string

const (
	TypeNewLead     NotificationType = "new_lead"
	TypeLeadStatus  NotificationType = "lead_status"
	TypeQuoteStatus NotificationType = "quote_status"
	TypeInvoicePaid NotificationType = "invoice_paid"
	TypeSystem      NotificationType = "system"
)

// NotificationTypes lists every known category in display order.
var NotificationTypes = []NotificationType{
	TypeNewLead,
	TypeLeadStatus,
	TypeQuoteStatus,
	TypeInvoicePaid,
	TypeSystem,
}

// Label returns the human-readable name of the category.
func (t NotificationType) Label() string {
	switch t {
	case TypeNewLead:
		return "New lead"
	case TypeLeadStatus:
		return "Lead status"
	case TypeQuoteStatus:
		return "Quote status"
	case TypeInvoicePaid:
		return "Invoice paid"
	case TypeSystem:
		return "System"
	default:
		return string(t)
	}
}

// Priority is the server-assigned urgency of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is a single server-originated event surfaced to the
// operator. It is created server-side on business events (a new lead, a
// paid invoice) and ingested read-only by the client; Read is the only
// field the client ever mutates, via an explicit mark-read call.
type Notification struct {
	// ID is the unique, server-assigned identifier.
	ID int64 `json:"id"`

	// Type is the event category this notification belongs to.
	Type NotificationType `json:"type"`

	// Title is the short headline text.
	Title string `json:"title"`

	// Message is the full notification body.
	Message string `json:"message"`

	// Data carries optional structured payload, e.g. a navigation url.
	Data map[string]any `json:"data,omitempty"`

	// Priority is the server-assigned urgency.
	Priority Priority `json:"priority"`

	// Read indicates whether the operator has seen this notification.
	Read bool `json:"is_read"`

	// CreatedAt is when the server generated the notification.
	CreatedAt time.Time `json:"created_at"`
}

// NavigationURL returns the url carried in Data, or "" when the
// notification has no navigation target.
func (n Notification) NavigationURL() string {
	if n.Data == nil {
		return ""
	}
	if u, ok := n.Data["url"].(string); ok {
		return u
	}
	return ""
}
