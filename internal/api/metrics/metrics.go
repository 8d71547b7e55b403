// Package metrics defines and registers all custom Prometheus metrics for the
// auth API. It is the single source of truth for metric names, labels, and
// help strings. Metrics register with the default registry on import.
// HTTP request metrics come from echoprometheus in the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authz"

// ── Credential metrics ────────────────────────────────────────────────────────

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "created", "duplicate", "invalid" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials" or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Authorization metrics ─────────────────────────────────────────────────────

// AuthorizationDecisionsTotal counts gate decisions.
// Labels:
//   - role: the required role, or "any" for plain authentication
//   - decision: "allow", "deny" (403) or "unauthenticated" (401)
var AuthorizationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_decisions_total",
		Help:      "Total number of authorization decisions, by required role and outcome.",
	},
	[]string{"role", "decision"},
)

// PromotionsTotal counts promotion requests.
// Label:
//   - result: "promoted", "already_admin", "not_found", "denied" or "failed"
var PromotionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "promotions_total",
		Help:      "Total number of admin promotion requests, by result.",
	},
	[]string{"result"},
)
