package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for coachspace.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	persistErrors     *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	portalAttempts    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	taskSync          *prometheus.CounterVec
	invoicesGenerated prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coachspace_operation_duration_seconds",
				Help:    "Duration of store operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		persistErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachspace_persist_errors_total",
				Help: "Failed writes to the key-value store by key.",
			},
			[]string{"key"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachspace_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		portalAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachspace_portal_attempts_total",
				Help: "Portal password attempts by result.",
			},
			[]string{"result"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachspace_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachspace_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		taskSync: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachspace_task_sync_total",
				Help: "Task sync operations by outcome.",
			},
			[]string{"outcome"},
		),
		invoicesGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coachspace_recurring_invoices_generated_total",
				Help: "Invoices materialized from recurring templates.",
			},
		),
	}
}

// RecordOperation records the duration of a store operation.
func (m *Metrics) RecordOperation(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrPersistError increments the persistence error counter for key.
func (m *Metrics) IncrPersistError(key string) {
	m.persistErrors.WithLabelValues(key).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrPortalAttempt counts a portal unlock or setup attempt.
func (m *Metrics) IncrPortalAttempt(result string) {
	m.portalAttempts.WithLabelValues(result).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTaskSync counts one task sync outcome (pushed, deleted, pulled, failed).
func (m *Metrics) IncrTaskSync(outcome string, n int) {
	m.taskSync.WithLabelValues(outcome).Add(float64(n))
}

// IncrInvoicesGenerated counts recurring invoices materialized.
func (m *Metrics) IncrInvoicesGenerated(n int) {
	m.invoicesGenerated.Add(float64(n))
}

// Snapshot is the metrics part of GET /v1/stats.
type Snapshot struct {
	PersistenceErrors  float64
	PortalUnlocks      float64
	PortalFailures     float64
	PortalCacheHitRate float64
	TaskSyncFailures   float64
}

// GetSnapshot reads the current counter values.
func (m *Metrics) GetSnapshot(persistKeys []string) Snapshot {
	var persistErrs float64
	for _, k := range persistKeys {
		persistErrs += getCounterValue(m.persistErrors, k)
	}

	hits := getCounterValue(m.cacheHits, "portal_session")
	misses := getCounterValue(m.cacheMisses, "portal_session")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	var failures float64
	for _, result := range []string{"wrong_password", "rate_limited", "invalid_token"} {
		failures += getCounterValue(m.portalAttempts, result)
	}

	return Snapshot{
		PersistenceErrors:  persistErrs,
		PortalUnlocks:      getCounterValue(m.portalAttempts, "unlocked"),
		PortalFailures:     failures,
		PortalCacheHitRate: hitRate,
		TaskSyncFailures:   getCounterValue(m.taskSync, "failed"),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
