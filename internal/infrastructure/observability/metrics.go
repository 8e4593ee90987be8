// Package observability holds the Prometheus metrics of the service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
)

const namespace = "friendship_streaks"

// Outcome labels.
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidArgument    = "invalid_argument"
	OutcomeConflict           = "conflict"
	OutcomeNotFound           = "not_found"
	OutcomePreconditionFailed = "precondition_failed"
	OutcomeStoreUnavailable   = "store_unavailable"
	OutcomeExternal           = "external"
	OutcomeError              = "error"
)

// Metrics is the set of collectors registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts registry, engine and aggregator calls.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration records call latency.
	OperationDuration *prometheus.HistogramVec
	// StoreQueryLatency records store latency by operation.
	StoreQueryLatency *prometheus.HistogramVec
	// RankingCacheTotal counts ranking cache lookups by result.
	RankingCacheTotal *prometheus.CounterVec
	// NotificationsTotal counts notification deliveries.
	NotificationsTotal *prometheus.CounterVec
	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec
	// IntegrityIssues is the issue count of the last integrity scan by kind.
	IntegrityIssues *prometheus.GaugeVec
}

// NewMetrics registers all collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of operations by component, operation and outcome",
		}, []string{"component", "operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "operation"}),
		StoreQueryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_query_latency_seconds",
			Help:      "Store query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		RankingCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_cache_total",
			Help:      "Ranking cache lookups by result",
		}, []string{"result"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by event type and outcome",
		}, []string{"event_type", "outcome"}),
		CircuitBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		IntegrityIssues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_issues",
			Help:      "Pair invariant violations found by the last integrity scan",
		}, []string{"kind"}),
	}
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation records one call. Safe on a nil receiver.
func (m *Metrics) ObserveOperation(component, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(component, operation, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(component, operation).Observe(time.Since(start).Seconds())
}

// TrackStore returns a function that records store latency when called.
func (m *Metrics) TrackStore(operation string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.StoreQueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RankingCache records a cache lookup result ("hit", "miss" or "error").
func (m *Metrics) RankingCache(result string) {
	if m == nil {
		return
	}
	m.RankingCacheTotal.WithLabelValues(result).Inc()
}

// SetIntegrityIssues replaces the integrity gauges with counts by kind.
func (m *Metrics) SetIntegrityIssues(byKind map[string]int) {
	if m == nil {
		return
	}
	m.IntegrityIssues.Reset()
	for kind, n := range byKind {
		m.IntegrityIssues.WithLabelValues(kind).Set(float64(n))
	}
}

// Notification records one delivery attempt.
func (m *Metrics) Notification(eventType string, err error) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(eventType, Outcome(err)).Inc()
}

// BreakerState records a breaker transition.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// PoolStats is a snapshot of a connection pool.
type PoolStats struct {
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	MaxConns      int32
}

// RegisterPoolStats exports pool gauges read from stats at scrape time.
func (m *Metrics) RegisterPoolStats(stats func() PoolStats) {
	gauge := func(name, help string, pick func(PoolStats) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats())) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Total connections in the pool", func(s PoolStats) int32 { return s.TotalConns }),
		gauge("idle_conns", "Idle connections in the pool", func(s PoolStats) int32 { return s.IdleConns }),
		gauge("acquired_conns", "Connections currently in use", func(s PoolStats) int32 { return s.AcquiredConns }),
		gauge("max_conns", "Maximum pool size", func(s PoolStats) int32 { return s.MaxConns }),
	)
}

// Outcome maps an error to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case shared.IsInvalidArgument(err):
		return OutcomeInvalidArgument
	case shared.IsConflict(err):
		return OutcomeConflict
	case shared.IsNotFound(err):
		return OutcomeNotFound
	case shared.IsPreconditionFailed(err):
		return OutcomePreconditionFailed
	case shared.IsExternalService(err):
		return OutcomeExternal
	case shared.IsStoreUnavailable(err):
		return OutcomeStoreUnavailable
	default:
		return OutcomeError
	}
}
