// Package app wires the provider client, role resolver, session observer,
// gates and diagnostics into one running application core.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/config"
	"github.com/iliyamo/lawncare-booking/internal/diagnostics"
	"github.com/iliyamo/lawncare-booking/internal/gate"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/provider"
	"github.com/iliyamo/lawncare-booking/internal/resolver"
	"github.com/iliyamo/lawncare-booking/internal/securestore"
	"github.com/iliyamo/lawncare-booking/internal/session"
)

// ErrUnknownScreen is returned by Open for names not in Screens.
var ErrUnknownScreen = errors.New("unknown screen")

// ErrUnknownAction is returned by Recover for unrecognised actions.
var ErrUnknownAction = errors.New("unknown recovery action")

// Screen is a role-gated destination.
type Screen struct {
	Name  string
	Path  string
	Roles []model.Role
}

// Screens lists the gated screens by name.
var Screens = map[string]Screen{
	"bookings": {Name: "bookings", Path: session.PathBookings, Roles: []model.Role{model.RoleCustomer}},
	"jobs":     {Name: "jobs", Path: session.PathJobs, Roles: []model.Role{model.RoleTechnician}},
	"admin":    {Name: "admin", Path: session.PathAdmin, Roles: []model.Role{model.RoleAdmin}},
	"profile":  {Name: "profile", Path: "/profile", Roles: model.Roles},
}

// ScreenNames returns the screen names sorted.
func ScreenNames() []string {
	out := make([]string, 0, len(Screens))
	for n := range Screens {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// App is the composition root.  It owns the convergence flag, so a fresh
// App gets exactly one convergence refresh.
type App struct {
	Client      *provider.Client
	Convergence *resolver.Convergence
	Manager     *resolver.Manager
	Observer    *session.Observer
	Diagnostics *diagnostics.Service
	Log         *zap.Logger

	nav       session.Navigator
	closeOnce sync.Once
}

// New builds an App from cfg.  nav receives SIGNED_IN / SIGNED_OUT route
// changes and recovery navigation; nil discards them.
func New(cfg config.ClientConfig, log *zap.Logger, nav session.Navigator) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if nav == nil {
		nav = session.NavigatorFunc(func(string) {})
	}

	var store provider.SessionStore
	if cfg.SessionFile != "" {
		fs, err := securestore.NewFileStore(cfg.SessionFile, cfg.SessionKey)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		store = fs
	}

	client, err := provider.NewClient(provider.Options{
		BaseURL:       cfg.BaseURL,
		AnonKey:       cfg.AnonKey,
		Timeout:       cfg.HTTPTimeout,
		Store:         store,
		AutoRefresh:   cfg.AutoRefresh,
		RefreshMargin: cfg.AutoRefreshMargin,
		Logger:        log.Named("provider"),
	})
	if err != nil {
		return nil, err
	}

	conv := &resolver.Convergence{}
	strategies := resolver.DefaultStrategies(client)
	res := resolver.New(strategies,
		resolver.WithConvergence(conv),
		resolver.WithLookupTimeout(cfg.RoleLookupTimeout),
		resolver.WithLogger(log.Named("resolver")))
	mgr := resolver.NewManager(res, client, conv, cfg.RefreshTimeout, log.Named("resolver"))

	// diagnostics reads the same sources but never converges
	diagRes := resolver.New(strategies,
		resolver.WithLookupTimeout(cfg.RoleLookupTimeout),
		resolver.WithLogger(log.Named("diagnostics")))

	return &App{
		Client:      client,
		Convergence: conv,
		Manager:     mgr,
		Observer:    session.NewObserver(mgr, nav, log.Named("session")),
		Diagnostics: diagnostics.NewService(client, client, client, diagRes),
		Log:         log,
		nav:         nav,
	}, nil
}

// Start subscribes the observer to auth events.  The first event is the
// restored (or empty) session.
func (a *App) Start(ctx context.Context) {
	a.Observer.Start(ctx, a.Client)
}

// Close stops the observer, waits for a pending convergence refresh and
// stops the client's refresh timer.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Observer.Stop()
		a.Manager.Wait()
		a.Client.Close()
	})
}

// SignIn signs in with email and password.  It returns after the observer
// has resolved the new role and navigated home, so a gate evaluated next
// sees the signed-in user.
func (a *App) SignIn(ctx context.Context, email, password string) error {
	if _, err := a.Client.SignInWithPassword(ctx, email, password); err != nil {
		return err
	}
	return a.settle(ctx)
}

// SignOut ends the session.  The local session is always dropped, and the
// observer has applied the sign-out by the time SignOut returns.
func (a *App) SignOut(ctx context.Context, scope provider.SignOutScope) error {
	err := a.Client.SignOut(ctx, scope)
	if werr := a.settle(ctx); err == nil {
		err = werr
	}
	return err
}

// settle waits until the observer has handled every session change the
// client has made so far.
func (a *App) settle(ctx context.Context) error {
	if err := a.Observer.WaitHandled(ctx, a.Client.Seq()); err != nil {
		return fmt.Errorf("waiting for session state: %w", err)
	}
	return nil
}

// Open waits for the current role resolution and evaluates the screen's
// gate.  A denial carries the redirect and recovery actions; the redirect
// is also handed to the navigator.
func (a *App) Open(ctx context.Context, name string) (gate.Decision, error) {
	sc, ok := Screens[name]
	if !ok {
		return gate.Decision{}, fmt.Errorf("%w: %q", ErrUnknownScreen, name)
	}
	g := gate.Guard{Gate: gate.New(session.PathRoot, sc.Roles...)}
	d, err := g.Wait(ctx, a.Observer)
	if err != nil {
		return d, err
	}
	switch d.Status {
	case gate.Authorized:
		a.nav.Navigate(sc.Path)
	case gate.Denied:
		a.nav.Navigate(d.Redirect)
	}
	return d, nil
}

// Recover runs a denial recovery action.  refresh_session returns the role
// resolved from the refreshed session; the other actions return "".
// Refresh failures are returned unchanged and never retried.
func (a *App) Recover(ctx context.Context, action gate.RecoveryAction) (model.Role, error) {
	switch action {
	case gate.ActionHome:
		st := a.Observer.State()
		if !st.SignedIn() {
			a.nav.Navigate(session.PathLogin)
			return "", nil
		}
		a.nav.Navigate(session.HomeFor(st.Role))
		return st.Role, nil
	case gate.ActionRefreshSession:
		role, err := a.Manager.RefreshRole(ctx)
		// a rejected refresh signs out; either way the gates should see it
		if werr := a.settle(ctx); err == nil && werr != nil {
			return "", werr
		}
		return role, err
	case gate.ActionReauthenticate, gate.ActionSignOut:
		// reauthenticate ends here too; the SIGNED_OUT event routes to login
		return "", a.SignOut(ctx, provider.ScopeLocal)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
