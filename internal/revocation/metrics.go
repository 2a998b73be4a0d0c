package revocation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

var (
	isRevokedDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ehr_revocation_check_duration_ms",
		Help:    "Latency of token revocation checks in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	}, []string{"backend"})

	revocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ehr_revocation_entries_created_total",
		Help: "Total number of revocation entries written",
	}, []string{"backend"})

	sweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ehr_revocation_entries_swept_total",
		Help: "Total number of expired revocation entries removed by sweeps",
	}, []string{"backend"})
)

func observeCheck(backend string, start time.Time) {
	isRevokedDurationMs.WithLabelValues(backend).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
