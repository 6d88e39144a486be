// Package metrics exposes Prometheus instrumentation for the
// remediation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects remediation metrics on a private registry. A nil
// Recorder is valid and records nothing, so callers can wire metrics
// optionally.
type Recorder struct {
	registry *prometheus.Registry

	plansCreated    prometheus.Counter
	planActions     prometheus.Histogram
	actionsExecuted *prometheus.CounterVec
	actionDuration  prometheus.Histogram
	rollbacks       *prometheus.CounterVec
	approvals       *prometheus.CounterVec
}

// NewRecorder builds a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		plansCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftguard_plans_created_total",
			Help: "Total number of remediation plans created",
		}),
		planActions: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftguard_plan_actions",
			Help:    "Number of actions per remediation plan",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
		}),
		actionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftguard_actions_executed_total",
			Help: "Total number of remediation actions by final status",
		}, []string{"status"}),
		actionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftguard_action_duration_seconds",
			Help:    "Remediation action execution time",
			Buckets: prometheus.DefBuckets,
		}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftguard_rollbacks_total",
			Help: "Total number of rollback attempts by result",
		}, []string{"result"}),
		approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftguard_approvals_total",
			Help: "Total number of approval decisions by outcome",
		}, []string{"outcome"}),
	}
}

// PlanCreated records a new plan and its action count.
func (r *Recorder) PlanCreated(totalActions int) {
	if r == nil {
		return
	}
	r.plansCreated.Inc()
	r.planActions.Observe(float64(totalActions))
}

// ActionExecuted records an action reaching a final status.
func (r *Recorder) ActionExecuted(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.actionsExecuted.WithLabelValues(status).Inc()
	if duration > 0 {
		r.actionDuration.Observe(duration.Seconds())
	}
}

// RollbackPerformed records a rollback attempt.
func (r *Recorder) RollbackPerformed(success bool) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.rollbacks.WithLabelValues(result).Inc()
}

// ApprovalDecided records an approval outcome.
func (r *Recorder) ApprovalDecided(approved bool) {
	if r == nil {
		return
	}
	outcome := "approved"
	if !approved {
		outcome = "denied"
	}
	r.approvals.WithLabelValues(outcome).Inc()
}

// Handler serves the recorder's registry in Prometheus exposition
// format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
