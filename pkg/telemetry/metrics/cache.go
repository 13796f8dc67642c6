package metrics

import (
	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks the shared key-value cache backend. The backend
// label carries the implementation name ("memory", "redis").
//
// Metrics:
//   - cache_hits_total / cache_misses_total: lookup outcomes
//   - cache_errors_total: failed operations by operation name
//   - cache_entries: current entry count, when the backend reports one
type CacheMetrics struct {
	hitsTotal   *prometheus.CounterVec
	missesTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	entries     *prometheus.GaugeVec
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Cache lookups that found a value",
			},
			[]string{"backend"},
		),
		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Cache lookups that found nothing",
			},
			[]string{"backend"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_errors_total",
				Help:      "Cache operations that failed",
			},
			[]string{"backend", "op"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_entries",
				Help:      "Current cache entry count",
			},
			[]string{"backend"},
		),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.errorsTotal,
		cm.entries,
	)

	return cm
}

// RecordHit counts a lookup that found a value.
func (cm *CacheMetrics) RecordHit(backend string) {
	cm.hitsTotal.WithLabelValues(backend).Inc()
}

// RecordMiss counts a lookup that found nothing.
func (cm *CacheMetrics) RecordMiss(backend string) {
	cm.missesTotal.WithLabelValues(backend).Inc()
}

// RecordError counts a failed cache operation.
func (cm *CacheMetrics) RecordError(backend, op string) {
	cm.errorsTotal.WithLabelValues(backend, op).Inc()
}

// UpdateEntries sets the current entry count for a backend.
func (cm *CacheMetrics) UpdateEntries(backend string, n int) {
	cm.entries.WithLabelValues(backend).Set(float64(n))
}
