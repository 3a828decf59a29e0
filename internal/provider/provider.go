// Package provider is the app's boundary with the backend-as-a-service:
// authentication, session state change notifications and row access to the
// profiles and user_roles tables.
package provider

import (
	"context"
	"errors"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

var (
	// ErrNoSession is returned when an operation needs a signed-in session.
	ErrNoSession = errors.New("provider: no session")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("provider: not found")
)

// EventType names an auth state transition.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is delivered to listeners on every auth state transition.  Session
// is nil for SIGNED_OUT and for INITIAL_SESSION without a stored session.
// Seq increases with every session change; INITIAL_SESSION carries the
// sequence of the session it reports.
type Event struct {
	Type    EventType
	Session *model.Session
	Seq     uint64
}

// Listener receives auth events.  Listeners of one subscription are called
// sequentially in delivery order.
type Listener func(Event)

// Subscription is returned by OnAuthStateChange.
type Subscription interface {
	Unsubscribe()
}

// SignOutScope selects which sessions a sign-out terminates.
type SignOutScope string

const (
	ScopeLocal  SignOutScope = "local"
	ScopeGlobal SignOutScope = "global"
)

// Auth is the authentication half of the provider.
type Auth interface {
	// GetSession returns the cached session or nil.
	GetSession(ctx context.Context) (*model.Session, error)
	// OnAuthStateChange subscribes l; l first receives INITIAL_SESSION.
	OnAuthStateChange(l Listener) Subscription
	// RefreshSession forces a token renewal and emits TOKEN_REFRESHED.
	RefreshSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, scope SignOutScope) error
}

// ProfileStore reads and patches rows of the profiles table.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error)
}

// UserRoleStore reads rows of the user_roles table.
type UserRoleStore interface {
	GetUserRole(ctx context.Context, userID string) (*model.UserRole, error)
}

// Provider is the full collaborator surface consumed by the app.
type Provider interface {
	Auth
	ProfileStore
	UserRoleStore
}

// SessionStore persists the current session between process runs.  Load
// returns (nil, nil) when nothing is stored.
type SessionStore interface {
	Load() (*model.Session, error)
	Save(s *model.Session) error
	Clear() error
}
