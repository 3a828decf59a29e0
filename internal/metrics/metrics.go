// Package metrics holds the Prometheus collectors shared by the app and
// the dev server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoleResolutions counts resolutions by the source that supplied the role.
	RoleResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "role_resolutions_total",
		Help: "Role resolutions by winning source.",
	}, []string{"source"})

	// ProfileLookupFailures counts profile fetches that fell back to the default role.
	ProfileLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "role_profile_lookup_failures_total",
		Help: "Profile lookups that failed and resolved to the default role.",
	})

	// ConvergenceRefreshes counts one-shot convergence refreshes by outcome.
	ConvergenceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "role_convergence_refreshes_total",
		Help: "Convergence token refreshes by outcome.",
	}, []string{"outcome"})

	// GateDecisions counts role-gate decisions by route group and status.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "role_gate_decisions_total",
		Help: "Role gate decisions by status.",
	}, []string{"status"})
)
