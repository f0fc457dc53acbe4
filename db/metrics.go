package db

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

const (
	metricsNamespace = "ffstorage"
	metricsSubsystem = "db"
)

// Metrics collects query and resilience metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
	retries       *prometheus.CounterVec
	circuitOpen   *prometheus.GaugeVec
	cacheRequests *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "query_duration_seconds",
				Help:      "Duration of repository operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "operation"},
		),
		queryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "query_errors_total",
				Help:      "Total number of failed repository operations by error kind",
			},
			[]string{"model", "operation", "kind"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "retries_total",
				Help:      "Total number of retried attempts",
			},
			[]string{"model", "operation"},
		),
		circuitOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"model"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "cache_requests_total",
				Help:      "Repository cache lookups by result",
			},
			[]string{"model", "result"},
		),
	}
}

// RegisterDBStats exposes database/sql pool statistics under name.
func RegisterDBStats(reg prometheus.Registerer, name string, conn *sql.DB) error {
	return reg.Register(collectors.NewDBStatsCollector(conn, name))
}

// ObserveQuery records the duration of one operation and its error kind.
func (m *Metrics) ObserveQuery(model, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(model, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.queryErrors.WithLabelValues(model, operation, storeerr.KindOf(err).String()).Inc()
	}
}

// IncRetry counts one retried attempt.
func (m *Metrics) IncRetry(model, operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(model, operation).Inc()
}

// SetCircuitState publishes the breaker state for model.
func (m *Metrics) SetCircuitState(model string, state BreakerState) {
	if m == nil {
		return
	}
	m.circuitOpen.WithLabelValues(model).Set(float64(state))
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(model string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(model, result).Inc()
}
