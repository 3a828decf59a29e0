package model

import "time"

// Booking statuses.
const (
	BookingRequested  = "REQUESTED"
	BookingScheduled  = "SCHEDULED"
	BookingInProgress = "IN_PROGRESS"
	BookingCompleted  = "COMPLETED"
	BookingCancelled  = "CANCELLED"
)

// Booking is a customer's request for a lawn-care service visit.  It is
// assigned to a technician by an admin and moved through its statuses by
// the technician.
//
// Fields:
//  ID           – bookings.id (UUID).
//  CustomerID   – user who requested the visit.
//  TechnicianID – assigned technician (nil until assigned).
//  Service      – service name (mowing, aeration, ...).
//  Address      – visit address.
//  ScheduledFor – requested visit time (UTC).
//  Status       – one of the Booking* constants.
//  Notes        – free text from the customer (nullable).
//  PaymentRef   – opaque external payment identifier (nullable).
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Booking struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	TechnicianID *string   `json:"technician_id,omitempty"`
	Service      string    `json:"service"`
	Address      string    `json:"address"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       string    `json:"status"`
	Notes        *string   `json:"notes,omitempty"`
	PaymentRef   *string   `json:"payment_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidBookingStatus reports whether s is a known booking status.
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingRequested, BookingScheduled, BookingInProgress, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}
