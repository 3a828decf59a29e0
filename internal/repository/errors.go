// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to act on a booking owned by someone else, while
// ErrConflict signals that a state change is not allowed from the
// record's current state (e.g. completing a cancelled booking).
package repository

import (
	"errors"

	"github.com/iliyamo/lawncare-booking/internal/provider"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed
// because of conflicting state. Handlers should translate this
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a row does not exist.  It is the same value
// the provider client returns for a 404, so the role resolver treats a
// missing profile identically on the server and in the app.
var ErrNotFound = provider.ErrNotFound

// ErrEmailExists is returned by sign-up for a duplicate email.
var ErrEmailExists = errors.New("email already exists")
