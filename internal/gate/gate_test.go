package gate

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/provider"
	"github.com/iliyamo/lawncare-booking/internal/session"
)

func state(r model.Role) session.State {
	return session.State{
		Session: &model.Session{User: &model.User{ID: "u-1"}},
		Role:    r,
	}
}

func TestEvaluate(t *testing.T) {
	adminOnly := New("", model.RoleAdmin)
	crew := New("/home", model.RoleTechnician, model.RoleAdmin)

	cases := []struct {
		name     string
		g        *Gate
		st       session.State
		want     Status
		redirect string
	}{
		{"loading renders nothing", adminOnly, session.State{Loading: true}, Loading, ""},
		{"admin allowed", adminOnly, state(model.RoleAdmin), Authorized, ""},
		{"technician denied", adminOnly, state(model.RoleTechnician), Denied, "/"},
		{"customer denied custom fallback", crew, state(model.RoleCustomer), Denied, "/home"},
		{"technician allowed", crew, state(model.RoleTechnician), Authorized, ""},
		{"signed out denied", crew, session.State{}, Denied, "/home"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.g.Evaluate(tc.st)
			if d.Status != tc.want || d.Redirect != tc.redirect {
				t.Fatalf("got %+v", d)
			}
		})
	}
}

func TestDenialOffersRecovery(t *testing.T) {
	d := New("", model.RoleAdmin).Evaluate(state(model.RoleTechnician))
	if d.Message != DeniedMessage {
		t.Fatalf("message = %q", d.Message)
	}
	if len(d.Actions) != 4 {
		t.Fatalf("actions = %v", d.Actions)
	}
	want := map[RecoveryAction]bool{ActionHome: true, ActionRefreshSession: true, ActionReauthenticate: true, ActionSignOut: true}
	for _, a := range d.Actions {
		if !want[a] {
			t.Fatalf("unexpected action %s", a)
		}
	}
}

type roleFunc func() model.Role

func (f roleFunc) ResolveRole(context.Context, *model.Session) model.Role { return f() }

func TestGuardWaitsForResolution(t *testing.T) {
	obs := session.NewObserver(roleFunc(func() model.Role { return model.RoleAdmin }), nil, nil)
	g := Guard{Gate: New("", model.RoleAdmin)}

	go func() {
		time.Sleep(10 * time.Millisecond)
		obs.Handle(context.Background(), provider.Event{
			Type:    provider.EventInitialSession,
			Session: &model.Session{User: &model.User{ID: "u-1"}},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := g.Wait(ctx, obs)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if d.Status != Authorized {
		t.Fatalf("got %+v", d)
	}
}

func TestGuardWaitHonoursContext(t *testing.T) {
	obs := session.NewObserver(roleFunc(func() model.Role { return model.RoleAdmin }), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	d, err := Guard{Gate: New("")}.Wait(ctx, obs)
	if err == nil || d.Status != Loading {
		t.Fatalf("got %+v, %v", d, err)
	}
}

func TestStatusString(t *testing.T) {
	if Loading.String() != "loading" || Authorized.String() != "authorized" || Denied.String() != "denied" {
		t.Fatalf("unexpected status names")
	}
}
