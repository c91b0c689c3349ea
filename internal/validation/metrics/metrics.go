package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the validation engine.
type Metrics struct {
	// Final verdicts by overall status and data type
	Reports *prometheus.CounterVec

	// Per-stage latency and outcome
	StageLatency *prometheus.HistogramVec
	StageOutcome *prometheus.CounterVec

	// Whole-pipeline latency for one submission
	ValidateLatency prometheus.Histogram

	BatchSize prometheus.Histogram
	InFlight  prometheus.Gauge

	// Remote verifier calls by verifier and outcome category
	RemoteCalls   *prometheus.CounterVec
	RemoteLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics with reg. Tests pass a fresh registry so
// repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triplecheck_reports_total",
			Help: "Finalized validation reports by overall status and data type",
		}, []string{"status", "data_type"}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triplecheck_stage_duration_seconds",
			Help:    "Duration of each validation stage",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"stage"}),

		StageOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triplecheck_stage_outcomes_total",
			Help: "Stage results by stage and status",
		}, []string{"stage", "status"}),

		ValidateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "triplecheck_validate_duration_seconds",
			Help:    "Duration of the full three-stage pipeline for one submission",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),

		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "triplecheck_batch_size",
			Help:    "Number of submissions per batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "triplecheck_validations_in_flight",
			Help: "Submissions currently being validated",
		}),

		RemoteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triplecheck_remote_calls_total",
			Help: "Remote verifier calls by verifier and outcome",
		}, []string{"verifier", "outcome"}),

		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triplecheck_remote_call_duration_seconds",
			Help:    "Duration of remote verifier calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"verifier"}),
	}
}

func (m *Metrics) IncrementReport(status, dataType string) {
	if m != nil {
		m.Reports.WithLabelValues(status, dataType).Inc()
	}
}

// ObserveStage records one stage run.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
		m.StageOutcome.WithLabelValues(stage, status).Inc()
	}
}

func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m != nil {
		m.ValidateLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveBatchSize(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// ObserveRemoteCall satisfies remote.Observer.
func (m *Metrics) ObserveRemoteCall(verifier, outcome string, d time.Duration) {
	if m != nil {
		m.RemoteCalls.WithLabelValues(verifier, outcome).Inc()
		m.RemoteLatency.WithLabelValues(verifier).Observe(d.Seconds())
	}
}
