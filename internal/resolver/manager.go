package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/metrics"
	"github.com/iliyamo/lawncare-booking/internal/model"
)

// Refresher forces a provider-level session refresh.
type Refresher interface {
	RefreshSession(ctx context.Context) (*model.Session, error)
}

// Manager couples the pure Resolver with the convergence side effect and
// the manual refresh operation.
type Manager struct {
	resolver       *Resolver
	refresher      Refresher
	convergence    *Convergence
	refreshTimeout time.Duration
	log            *zap.Logger

	wg sync.WaitGroup
}

// NewManager wires a manager.  conv must be the same value the resolver was
// built with.
func NewManager(r *Resolver, refresher Refresher, conv *Convergence, refreshTimeout time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}
	return &Manager{resolver: r, refresher: refresher, convergence: conv, refreshTimeout: refreshTimeout, log: log}
}

// Resolver exposes the underlying query for read-only callers.
func (m *Manager) Resolver() *Resolver { return m.resolver }

// ResolveRole resolves s and, the first time the profile row supplies the
// role, fires one background token refresh so the role lands in the JWT.
// The returned role never waits on that refresh.
func (m *Manager) ResolveRole(ctx context.Context, s *model.Session) model.Role {
	res := m.resolver.Resolve(ctx, s)
	if res.ShouldRefresh && m.convergence.TryIssue() {
		m.wg.Add(1)
		go m.converge(s.UserID())
	}
	return res.Role
}

func (m *Manager) converge(userID string) {
	defer m.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()
	if _, err := m.refresher.RefreshSession(ctx); err != nil {
		metrics.ConvergenceRefreshes.WithLabelValues("failed").Inc()
		m.log.Warn("convergence refresh failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	metrics.ConvergenceRefreshes.WithLabelValues("ok").Inc()
	m.log.Info("convergence refresh issued", zap.String("user_id", userID))
}

// Wait blocks until background convergence refreshes have finished.
func (m *Manager) Wait() { m.wg.Wait() }

// RefreshRole forces one session refresh and resolves the new session.
// Failures are returned to the caller unchanged in meaning; there is no
// retry.
func (m *Manager) RefreshRole(ctx context.Context) (model.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()
	s, err := m.refresher.RefreshSession(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	return m.ResolveRole(ctx, s), nil
}
