package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/provider"
)

type fixedRoles struct {
	mu    sync.Mutex
	role  model.Role
	calls int
}

func (f *fixedRoles) ResolveRole(ctx context.Context, s *model.Session) model.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.role
}

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) Navigate(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func signedIn(id string) *model.Session {
	return &model.Session{AccessToken: "t", User: &model.User{ID: id}}
}

func TestObserverStartsLoading(t *testing.T) {
	o := NewObserver(&fixedRoles{role: model.RoleAdmin}, nil, nil)
	if !o.State().Loading {
		t.Fatalf("new observer must be loading")
	}
}

func TestObserverPublishesFlags(t *testing.T) {
	cases := []struct {
		role                  model.Role
		admin, tech, customer bool
	}{
		{model.RoleAdmin, true, false, false},
		{model.RoleTechnician, false, true, false},
		{model.RoleCustomer, false, false, true},
	}
	for _, tc := range cases {
		o := NewObserver(&fixedRoles{role: tc.role}, nil, nil)
		o.Handle(context.Background(), provider.Event{Type: provider.EventSignedIn, Session: signedIn("u-1")})
		st := o.State()
		if st.Loading || st.Role != tc.role || st.IsAdmin != tc.admin || st.IsTechnician != tc.tech || st.IsCustomer != tc.customer {
			t.Fatalf("role %s: got %+v", tc.role, st)
		}
	}
}

func TestObserverSignOutClearsState(t *testing.T) {
	nav := &recordingNav{}
	o := NewObserver(&fixedRoles{role: model.RoleAdmin}, nav, nil)
	o.Handle(context.Background(), provider.Event{Type: provider.EventSignedIn, Session: signedIn("u-1")})
	o.Handle(context.Background(), provider.Event{Type: provider.EventSignedOut})

	st := o.State()
	if st.Session != nil || st.Role != "" || st.IsAdmin || st.IsTechnician || st.IsCustomer || st.Loading {
		t.Fatalf("expected cleared state, got %+v", st)
	}
	if len(nav.paths) != 2 || nav.paths[0] != PathAdmin || nav.paths[1] != PathLogin {
		t.Fatalf("unexpected navigation %v", nav.paths)
	}
}

func TestObserverTokenRefreshedDoesNotNavigate(t *testing.T) {
	nav := &recordingNav{}
	roles := &fixedRoles{role: model.RoleCustomer}
	o := NewObserver(roles, nav, nil)
	o.Handle(context.Background(), provider.Event{Type: provider.EventInitialSession, Session: signedIn("u-1")})

	roles.mu.Lock()
	roles.role = model.RoleTechnician
	roles.mu.Unlock()
	o.Handle(context.Background(), provider.Event{Type: provider.EventTokenRefreshed, Session: signedIn("u-1")})

	if len(nav.paths) != 0 {
		t.Fatalf("expected no navigation, got %v", nav.paths)
	}
	if st := o.State(); st.Role != model.RoleTechnician || !st.IsTechnician {
		t.Fatalf("refresh must still re-resolve the role, got %+v", st)
	}
	if roles.calls != 2 {
		t.Fatalf("expected two resolutions, got %d", roles.calls)
	}
}

func TestObserverInitialSessionWithoutUser(t *testing.T) {
	roles := &fixedRoles{role: model.RoleAdmin}
	o := NewObserver(roles, nil, nil)
	o.Handle(context.Background(), provider.Event{Type: provider.EventInitialSession})
	if st := o.State(); st.Loading || st.SignedIn() {
		t.Fatalf("got %+v", st)
	}
	if roles.calls != 0 {
		t.Fatalf("resolver must not run without a user")
	}
}

func TestObserverSubscribersSeeLoadingThenResolved(t *testing.T) {
	o := NewObserver(&fixedRoles{role: model.RoleTechnician}, nil, nil)
	var seen []State
	unsub := o.Subscribe(func(st State) { seen = append(seen, st) })

	o.Handle(context.Background(), provider.Event{Type: provider.EventSignedIn, Session: signedIn("u-1")})
	unsub()
	o.Handle(context.Background(), provider.Event{Type: provider.EventSignedOut})

	if len(seen) != 3 {
		t.Fatalf("expected initial, loading and resolved states, got %d", len(seen))
	}
	if !seen[1].Loading || seen[2].Loading || seen[2].Role != model.RoleTechnician {
		t.Fatalf("unexpected sequence %+v", seen)
	}
}

func TestObserverChangedFiresOnPublish(t *testing.T) {
	o := NewObserver(&fixedRoles{role: model.RoleCustomer}, nil, nil)
	ch := o.Changed()
	o.Handle(context.Background(), provider.Event{Type: provider.EventSignedOut})
	select {
	case <-ch:
	default:
		t.Fatalf("changed channel not closed")
	}
}

type stubAuth struct {
	provider.Auth
	listener provider.Listener
	unsubbed bool
}

type stubSub struct{ a *stubAuth }

func (s stubSub) Unsubscribe() { s.a.unsubbed = true }

func (a *stubAuth) OnAuthStateChange(l provider.Listener) provider.Subscription {
	a.listener = l
	l(provider.Event{Type: provider.EventInitialSession, Session: signedIn("u-9")})
	return stubSub{a}
}

func TestObserverStartHandlesInitialSession(t *testing.T) {
	auth := &stubAuth{}
	nav := &recordingNav{}
	o := NewObserver(&fixedRoles{role: model.RoleAdmin}, nav, nil)
	o.Start(context.Background(), auth)
	if st := o.State(); st.Role != model.RoleAdmin || st.Session.UserID() != "u-9" {
		t.Fatalf("got %+v", st)
	}
	if len(nav.paths) != 0 {
		t.Fatalf("initial session must not navigate")
	}
	o.Stop()
	if !auth.unsubbed {
		t.Fatalf("Stop must unsubscribe")
	}
}

func TestHomeFor(t *testing.T) {
	if HomeFor(model.RoleAdmin) != PathAdmin || HomeFor(model.RoleTechnician) != PathJobs ||
		HomeFor(model.RoleCustomer) != PathBookings || HomeFor("") != PathRoot {
		t.Fatalf("unexpected home routes")
	}
}

func TestObserverWaitHandled(t *testing.T) {
	auth := &stubAuth{}
	nav := &recordingNav{}
	o := NewObserver(&fixedRoles{role: model.RoleCustomer}, nav, nil)
	o.Start(context.Background(), auth)

	done := make(chan error, 1)
	go func() { done <- o.WaitHandled(context.Background(), 3) }()

	auth.listener(provider.Event{Type: provider.EventTokenRefreshed, Session: signedIn("u-9"), Seq: 2})
	select {
	case err := <-done:
		t.Fatalf("returned before seq 3 was handled: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	auth.listener(provider.Event{Type: provider.EventSignedOut, Seq: 3})
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitHandled did not return")
	}
	// navigation happens before the event counts as handled
	nav.mu.Lock()
	last := nav.paths[len(nav.paths)-1]
	nav.mu.Unlock()
	if last != PathLogin {
		t.Fatalf("last navigation = %q", last)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := o.WaitHandled(ctx, 10); err == nil {
		t.Fatal("expected a context error while seq 10 is outstanding")
	}
	o.Stop()
	if err := o.WaitHandled(context.Background(), 10); err != nil {
		t.Fatalf("after Stop: %v", err)
	}
}
