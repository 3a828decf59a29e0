package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

// BookingRepo provides CRUD operations for bookings.  It carries no
// scheduling or pricing rules; it only enforces ownership and the allowed
// status transitions.  All timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// NewBooking holds the customer-supplied fields of a booking request.
type NewBooking struct {
	Service      string    `json:"service"`
	Address      string    `json:"address"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Notes        *string   `json:"notes,omitempty"`
	PaymentRef   *string   `json:"payment_ref,omitempty"`
}

const bookingColumns = `id, customer_id, technician_id, service, address, scheduled_for, status, notes, payment_ref, created_at, updated_at`

// Create inserts a REQUESTED booking for customerID and returns it.
func (r *BookingRepo) Create(ctx context.Context, customerID string, in NewBooking) (*model.Booking, error) {
	id := uuid.NewString()
	const q = `INSERT INTO bookings (id, customer_id, service, address, scheduled_for, status, notes, payment_ref) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, id, customerID, in.Service, in.Address,
		in.ScheduledFor.UTC(), model.BookingRequested, in.Notes, in.PaymentRef); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Get returns one booking or ErrNotFound.
func (r *BookingRepo) Get(ctx context.Context, id string) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListByCustomer returns the customer's bookings, newest first.
func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE customer_id = ? ORDER BY scheduled_for DESC`, customerID)
}

// ListByTechnician returns the jobs assigned to technicianID, soonest first.
func (r *BookingRepo) ListByTechnician(ctx context.Context, technicianID string) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE technician_id = ? ORDER BY scheduled_for ASC`, technicianID)
}

// ListAll returns every booking, optionally filtered by status.
func (r *BookingRepo) ListAll(ctx context.Context, status string) ([]model.Booking, error) {
	if status != "" {
		return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status = ? ORDER BY scheduled_for ASC`, status)
	}
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY scheduled_for ASC`)
}

// Assign sets the technician and moves a REQUESTED booking to SCHEDULED.
// Re-assigning a SCHEDULED booking is allowed; anything later is a
// conflict.
func (r *BookingRepo) Assign(ctx context.Context, id, technicianID string) (*model.Booking, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET technician_id = ?, status = ? WHERE id = ? AND status IN (?, ?)`,
		technicianID, model.BookingScheduled, id, model.BookingRequested, model.BookingScheduled)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	return r.Get(ctx, id)
}

// UpdateStatus moves a booking along its lifecycle.  actorID must be the
// assigned technician unless asAdmin is set.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id, actorID, status string, asAdmin bool) (*model.Booking, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !asAdmin && (b.TechnicianID == nil || *b.TechnicianID != actorID) {
		return nil, ErrForbidden
	}
	if !CanTransition(b.Status, status) {
		return nil, ErrConflict
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ? AND status = ?`, status, id, b.Status)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost a race with another update
		return nil, ErrConflict
	}
	return r.Get(ctx, id)
}

// Cancel lets a customer cancel their own booking before work starts.
func (r *BookingRepo) Cancel(ctx context.Context, id, customerID string) (*model.Booking, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, ErrForbidden
	}
	if !CanTransition(b.Status, model.BookingCancelled) {
		return nil, ErrConflict
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ?`, model.BookingCancelled, id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// CanTransition reports whether a booking may move from one status to
// another.  Completed and cancelled bookings are final.
func CanTransition(from, to string) bool {
	switch from {
	case model.BookingRequested:
		return to == model.BookingScheduled || to == model.BookingCancelled
	case model.BookingScheduled:
		return to == model.BookingInProgress || to == model.BookingCancelled
	case model.BookingInProgress:
		return to == model.BookingCompleted
	}
	return false
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(s scanner) (*model.Booking, error) {
	var (
		b                       model.Booking
		tech, notes, paymentRef sql.NullString
	)
	if err := s.Scan(&b.ID, &b.CustomerID, &tech, &b.Service, &b.Address, &b.ScheduledFor,
		&b.Status, &notes, &paymentRef, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.TechnicianID = nullable(tech)
	b.Notes = nullable(notes)
	b.PaymentRef = nullable(paymentRef)
	return &b, nil
}
