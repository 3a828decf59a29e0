// Package gate decides whether a screen may be shown for the current
// session state.  A gate is either loading, authorized or denied; a denial
// always comes with a way out.
package gate

import (
	"context"

	"github.com/iliyamo/lawncare-booking/internal/metrics"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/session"
)

// Status is the gate's state.
type Status int

const (
	Loading Status = iota
	Authorized
	Denied
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// RecoveryAction is a manual way out of a denial.
type RecoveryAction string

const (
	ActionHome           RecoveryAction = "home"
	ActionRefreshSession RecoveryAction = "refresh_session"
	ActionReauthenticate RecoveryAction = "reauthenticate"
	ActionSignOut        RecoveryAction = "sign_out"
)

// RecoveryActions lists every action offered on a denial, in display order.
var RecoveryActions = []RecoveryAction{ActionHome, ActionRefreshSession, ActionReauthenticate, ActionSignOut}

// DeniedMessage is shown while the redirect is pending.
const DeniedMessage = "Access Denied"

// Decision is the result of evaluating a gate.
type Decision struct {
	Status   Status
	Role     model.Role
	Redirect string
	Message  string
	Actions  []RecoveryAction
}

// Gate guards content behind a set of allowed roles.
type Gate struct {
	allowed  map[model.Role]bool
	fallback string
}

// New builds a gate allowing roles.  An empty fallback redirects to "/".
func New(fallback string, roles ...model.Role) *Gate {
	if fallback == "" {
		fallback = session.PathRoot
	}
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return &Gate{allowed: allowed, fallback: fallback}
}

// Allows reports whether r is in the allowed set.
func (g *Gate) Allows(r model.Role) bool { return g.allowed[r] }

// Fallback is the redirect target for denials.
func (g *Gate) Fallback() string { return g.fallback }

// Evaluate maps an observer state to a decision.  A signed-out state is a
// denial with the resolved role left empty.
func (g *Gate) Evaluate(st session.State) Decision {
	d := g.evaluate(st)
	metrics.GateDecisions.WithLabelValues(d.Status.String()).Inc()
	return d
}

func (g *Gate) evaluate(st session.State) Decision {
	if st.Loading {
		return Decision{Status: Loading}
	}
	if st.SignedIn() && g.allowed[st.Role] {
		return Decision{Status: Authorized, Role: st.Role}
	}
	return g.Deny(st.Role)
}

// Deny builds the denial for role r.  It is shared with the HTTP gate.
func (g *Gate) Deny(r model.Role) Decision {
	actions := make([]RecoveryAction, len(RecoveryActions))
	copy(actions, RecoveryActions)
	return Decision{
		Status:   Denied,
		Role:     r,
		Redirect: g.fallback,
		Message:  DeniedMessage,
		Actions:  actions,
	}
}

// StateSource is the part of *session.Observer a Guard waits on.
type StateSource interface {
	State() session.State
	Changed() <-chan struct{}
}

// Guard waits on a gate.
type Guard struct {
	Gate *Gate
}

// Wait blocks until the state leaves Loading and returns the decision.  If
// ctx ends first the last decision, which is Loading, is returned together
// with ctx.Err().
func (g Guard) Wait(ctx context.Context, src StateSource) (Decision, error) {
	for {
		changed := src.Changed()
		st := src.State()
		if !st.Loading {
			return g.Gate.Evaluate(st), nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return Decision{Status: Loading}, ctx.Err()
		}
	}
}
