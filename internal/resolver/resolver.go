// Package resolver determines a signed-in user's role from an ordered list
// of sources (token claims first, the profiles table last) and owns the
// one-shot token refresh that pulls a database-assigned role into the JWT.
package resolver

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/claims"
	"github.com/iliyamo/lawncare-booking/internal/metrics"
	"github.com/iliyamo/lawncare-booking/internal/model"
)

// DefaultRole is returned when no source yields a role.
const DefaultRole = model.RoleCustomer

// Resolution is the outcome of one resolution pass.  ShouldRefresh asks the
// caller to issue the convergence refresh; Resolve never performs it.
type Resolution struct {
	Role          model.Role
	Source        Source
	ShouldRefresh bool
}

// Convergence records whether the one convergence refresh has been issued.
// One value lives for the process lifetime, owned by the composition root.
type Convergence struct {
	issued atomic.Bool
}

// Issued reports whether the refresh has already been claimed.
func (c *Convergence) Issued() bool { return c.issued.Load() }

// TryIssue claims the refresh; it returns true exactly once.
func (c *Convergence) TryIssue() bool { return c.issued.CompareAndSwap(false, true) }

// Resolver folds strategies first-match-wins.
type Resolver struct {
	strategies    []Strategy
	convergence   *Convergence
	lookupTimeout time.Duration
	log           *zap.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLookupTimeout bounds each strategy call.  Zero disables the bound.
func WithLookupTimeout(d time.Duration) Option { return func(r *Resolver) { r.lookupTimeout = d } }

// WithLogger sets the logger used for soft failures.
func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.log = l } }

// WithConvergence lets ShouldRefresh consult conv.  Without it ShouldRefresh
// is never set, which is what the server-side gate wants.
func WithConvergence(conv *Convergence) Option { return func(r *Resolver) { r.convergence = conv } }

// New builds a resolver over strategies in priority order.
func New(strategies []Strategy, opts ...Option) *Resolver {
	r := &Resolver{strategies: strategies, lookupTimeout: 5 * time.Second, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective role for s.  It never fails: a malformed
// token counts as "no claims" and a failed lookup resolves to DefaultRole.
func (r *Resolver) Resolve(ctx context.Context, s *model.Session) Resolution {
	in := Input{Session: s}
	if s != nil {
		// A decode error leaves Claims nil, which every claim strategy
		// reads as absent.
		in.Claims, _ = claims.Decode(s.AccessToken)
	}

	for _, st := range r.strategies {
		role, ok, err := r.lookup(ctx, st, in)
		if err != nil {
			r.log.Warn("role source failed, using default role",
				zap.String("source", string(st.Source())),
				zap.String("user_id", in.UserID()),
				zap.Error(err))
			metrics.ProfileLookupFailures.Inc()
			return r.finish(Resolution{Role: DefaultRole, Source: SourceDefault})
		}
		if !ok {
			continue
		}
		res := Resolution{Role: role, Source: st.Source()}
		if st.Source() == SourceProfile && r.convergence != nil && !r.convergence.Issued() {
			res.ShouldRefresh = true
		}
		return r.finish(res)
	}
	return r.finish(Resolution{Role: DefaultRole, Source: SourceDefault})
}

// Sources evaluates every strategy without short-circuiting.  It is used by
// diagnostics to show what each source says; missing sources are omitted.
func (r *Resolver) Sources(ctx context.Context, s *model.Session) map[Source]model.Role {
	in := Input{Session: s}
	if s != nil {
		in.Claims, _ = claims.Decode(s.AccessToken)
	}
	out := make(map[Source]model.Role, len(r.strategies))
	for _, st := range r.strategies {
		if role, ok, err := r.lookup(ctx, st, in); err == nil && ok {
			out[st.Source()] = role
		}
	}
	return out
}

func (r *Resolver) lookup(ctx context.Context, st Strategy, in Input) (model.Role, bool, error) {
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}
	return st.Lookup(ctx, in)
}

func (r *Resolver) finish(res Resolution) Resolution {
	metrics.RoleResolutions.WithLabelValues(string(res.Source)).Inc()
	return res
}
