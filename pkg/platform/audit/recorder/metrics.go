package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label.
const (
	dropOverflow    = "overflow"
	dropCircuitOpen = "circuit_open"
	dropClosed      = "closed"
	dropBuildFailed = "build_failed"
)

// Metrics holds Prometheus metrics for the audit recorder.
type Metrics struct {
	Enqueued            prometheus.Counter
	Persisted           prometheus.Counter
	PersistFailures     prometheus.Counter
	Dropped             *prometheus.CounterVec
	QueueDepth          prometheus.Gauge
	PersistDuration     prometheus.Histogram
	CircuitBreakerState prometheus.Gauge
}

// NewMetrics registers the recorder metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "ehr_audit_records_enqueued_total",
			Help: "Total number of audit records accepted into the write queue",
		}),
		Persisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ehr_audit_records_persisted_total",
			Help: "Total number of audit records written to the audit store",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ehr_audit_persist_failures_total",
			Help: "Total number of failed audit store writes",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_audit_records_dropped_total",
			Help: "Total number of audit records lost before persistence, by reason",
		}, []string{"reason"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ehr_audit_queue_depth",
			Help: "Audit records waiting to be persisted",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ehr_audit_persist_duration_seconds",
			Help:    "Latency of audit store writes",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ehr_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) incDropped(reason string) {
	m.Dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) setCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
