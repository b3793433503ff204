package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ProvisionRuns  *prometheus.CounterVec
	ProvisionSteps *prometheus.CounterVec
	EgressForwards *prometheus.CounterVec
	EgressBlocked  prometheus.Counter
	TicketsIssued  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProvisionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeflow_provision_runs_total",
			Help: "Provisioning runs by terminal state",
		}, []string{"state"}),
		ProvisionSteps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeflow_provision_steps_total",
			Help: "Provisioning step outcomes by step id and status",
		}, []string{"step", "status"}),
		EgressForwards: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeflow_egress_forwards_total",
			Help: "Forwarded egress requests by service and outcome",
		}, []string{"service", "outcome"}),
		EgressBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "forgeflow_egress_blocked_total",
			Help: "Egress requests refused by the domain allowlist",
		}),
		TicketsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "forgeflow_tickets_issued_total",
			Help: "One-time provisioning tickets issued",
		}),
	}
}
