package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the change request workflow.
type Metrics struct {
	Submitted          prometheus.Counter
	Conflicts          prometheus.Counter
	ValidationFailures *prometheus.CounterVec

	// Resolutions by outcome: APPROVED, REJECTED
	Resolutions    *prometheus.CounterVec
	Pending        prometheus.Gauge
	SubmitLatency  prometheus.Histogram
	ResolveLatency prometheus.Histogram
	AppliedFields  prometheus.Counter
}

// New registers the workflow metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Submitted: f.NewCounter(prometheus.CounterOpts{
			Name: "registrar_change_requests_submitted_total",
			Help: "Total change requests admitted as pending",
		}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "registrar_change_requests_conflicts_total",
			Help: "Submissions refused because the subject already had a pending request",
		}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_change_requests_validation_failures_total",
			Help: "Validation failures by stage",
		}, []string{"stage"}), // stage: "submit", "resolve"
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_change_requests_resolved_total",
			Help: "Resolved change requests by outcome",
		}, []string{"outcome"}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_change_requests_pending",
			Help: "Change requests currently awaiting a decision",
		}),
		SubmitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_change_request_submit_duration_seconds",
			Help:    "Duration of change request submission",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ResolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_change_request_resolve_duration_seconds",
			Help:    "Duration of change request resolution including record update",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		AppliedFields: f.NewCounter(prometheus.CounterOpts{
			Name: "registrar_subject_fields_applied_total",
			Help: "Field values written to subject records by approvals",
		}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m != nil {
		m.Submitted.Inc()
		m.Pending.Inc()
	}
}

func (m *Metrics) IncrementConflicts() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) IncrementValidationFailure(stage string) {
	if m != nil {
		m.ValidationFailures.WithLabelValues(stage).Inc()
	}
}

// IncrementResolved records a resolution and drops the pending gauge.
func (m *Metrics) IncrementResolved(outcome string, applied int) {
	if m != nil {
		m.Resolutions.WithLabelValues(outcome).Inc()
		m.Pending.Dec()
		m.AppliedFields.Add(float64(applied))
	}
}

// SetPending resets the pending gauge, used at startup against a durable store.
func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}

func (m *Metrics) ObserveSubmitLatency(d time.Duration) {
	if m != nil {
		m.SubmitLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}
