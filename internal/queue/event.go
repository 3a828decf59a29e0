// Package queue defines message payloads exchanged over the message broker
// and the background consumers that act on them.
package queue

// Queue names.  Each event type has its own durable queue on the default
// exchange.
const (
	RoleChangedQueue    = "role.changed"
	BookingCreatedQueue = "booking.created"
)

// RoleChangedEvent is published when an admin changes a user's role.  The
// consumer evicts the cached profile so the next role lookup reads the new
// value; the user's token picks it up on the next refresh.
type RoleChangedEvent struct {
	UserID    string `json:"user_id"`
	OldRole   string `json:"old_role"`
	NewRole   string `json:"new_role"`
	ChangedBy string `json:"changed_by"`
	ChangedAt string `json:"changed_at"`
}

// BookingCreatedEvent is published when a customer requests a visit.  It
// carries enough for downstream consumers to log or notify without
// querying the primary database.
type BookingCreatedEvent struct {
	BookingID    string `json:"booking_id"`
	CustomerID   string `json:"customer_id"`
	Service      string `json:"service"`
	Address      string `json:"address"`
	ScheduledFor string `json:"scheduled_for"`
	CreatedAt    string `json:"created_at"`
}
