// Package session keeps the app's view of who is signed in and with which
// role, driven by the provider's auth state notifications.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/provider"
)

// State is what subscribers see after every auth event.
//
// Fields:
//  Session      – current session, nil when signed out.
//  Role         – resolved role, "" when signed out.
//  IsAdmin      – Role == admin.
//  IsTechnician – Role == technician.
//  IsCustomer   – Role == customer.
//  Loading      – a resolution is in flight; gates render nothing yet.
type State struct {
	Session      *model.Session
	Role         model.Role
	IsAdmin      bool
	IsTechnician bool
	IsCustomer   bool
	Loading      bool
}

// SignedIn reports whether the state carries a user.
func (s State) SignedIn() bool { return s.Session.UserID() != "" }

func resolved(s *model.Session, r model.Role) State {
	return State{
		Session:      s,
		Role:         r,
		IsAdmin:      r == model.RoleAdmin,
		IsTechnician: r == model.RoleTechnician,
		IsCustomer:   r == model.RoleCustomer,
	}
}

// RoleResolver is satisfied by *resolver.Manager.
type RoleResolver interface {
	ResolveRole(ctx context.Context, s *model.Session) model.Role
}

// Navigator performs route changes.  It is only called for SIGNED_IN and
// SIGNED_OUT.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Route paths used on sign-in and sign-out.
const (
	PathLogin    = "/login"
	PathRoot     = "/"
	PathBookings = "/bookings"
	PathJobs     = "/jobs"
	PathAdmin    = "/admin"
)

// HomeFor returns the landing route for a role.
func HomeFor(r model.Role) string {
	switch r {
	case model.RoleAdmin:
		return PathAdmin
	case model.RoleTechnician:
		return PathJobs
	case model.RoleCustomer:
		return PathBookings
	}
	return PathRoot
}

// Observer is the single writer of State.  Events are handled one at a
// time in delivery order.
type Observer struct {
	roles RoleResolver
	nav   Navigator
	log   *zap.Logger

	handleMu sync.Mutex // serialises Handle

	mu      sync.RWMutex
	state   State
	changed chan struct{}
	subs    map[int]func(State)
	nextID  int

	// handled is the Seq of the last event fully applied, navigation
	// included.  handledCh is closed whenever it advances or on Stop.
	handled   uint64
	handledCh chan struct{}
	running   bool

	sub provider.Subscription
}

// NewObserver returns an observer in the Loading state.  nav may be nil.
func NewObserver(roles RoleResolver, nav Navigator, log *zap.Logger) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Observer{
		roles:   roles,
		nav:     nav,
		log:     log,
		state:     State{Loading: true},
		changed:   make(chan struct{}),
		subs:      make(map[int]func(State)),
		handledCh: make(chan struct{}),
	}
}

// Start subscribes to auth.  The provider delivers INITIAL_SESSION first.
func (o *Observer) Start(ctx context.Context, auth provider.Auth) {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	o.sub = auth.OnAuthStateChange(func(ev provider.Event) {
		o.Handle(ctx, ev)
	})
}

// Stop ends the subscription started by Start and returns once an event
// being handled has finished.  Pending WaitHandled calls return.
func (o *Observer) Stop() {
	if o.sub != nil {
		o.sub.Unsubscribe()
	}
	o.mu.Lock()
	o.running = false
	close(o.handledCh)
	o.handledCh = make(chan struct{})
	o.mu.Unlock()
}

// WaitHandled blocks until the event with sequence seq (or a later one)
// has been applied.  It returns at once when the observer is not running.
func (o *Observer) WaitHandled(ctx context.Context, seq uint64) error {
	for {
		o.mu.RLock()
		done := !o.running || o.handled >= seq
		ch := o.handledCh
		o.mu.RUnlock()
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (o *Observer) markHandled(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq <= o.handled {
		return
	}
	o.handled = seq
	close(o.handledCh)
	o.handledCh = make(chan struct{})
}

// Handle applies one auth event.
func (o *Observer) Handle(ctx context.Context, ev provider.Event) {
	o.handleMu.Lock()
	defer o.handleMu.Unlock()
	defer o.markHandled(ev.Seq)

	s := ev.Session
	var next State
	if s.UserID() == "" {
		next = State{}
	} else {
		prev := o.State()
		loading := prev
		loading.Session = s
		loading.Loading = true
		o.publish(loading)
		next = resolved(s, o.roles.ResolveRole(ctx, s))
	}
	o.publish(next)

	o.log.Debug("auth event handled",
		zap.String("event", string(ev.Type)),
		zap.String("user_id", s.UserID()),
		zap.String("role", string(next.Role)))

	if o.nav == nil {
		return
	}
	switch ev.Type {
	case provider.EventSignedIn:
		o.nav.Navigate(HomeFor(next.Role))
	case provider.EventSignedOut:
		o.nav.Navigate(PathLogin)
	}
	// TOKEN_REFRESHED fires from the provider's background timer; navigating
	// on it would bounce the user off whatever screen they are on.
}

// State returns a copy of the current state.
func (o *Observer) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Changed returns a channel closed at the next state publication.
func (o *Observer) Changed() <-chan struct{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.changed
}

// Subscribe registers fn for every published state and calls it once with
// the current one.  The returned func removes it.
func (o *Observer) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	cur := o.state
	o.mu.Unlock()

	fn(cur)
	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *Observer) publish(st State) {
	o.mu.Lock()
	o.state = st
	close(o.changed)
	o.changed = make(chan struct{})
	fns := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
