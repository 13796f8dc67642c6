package metrics

import (
	"time"

	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// TriageMetrics tracks rule-set compilation and utterance matching.
//
// Metrics:
//   - triage_cache_hits_total / triage_cache_misses_total: compiled rule
//     set lookups against the shared cache, by tenant
//   - triage_compiles_total: full compilation passes, by tenant
//   - triage_compile_duration_seconds: compilation latency
//   - triage_rules_active: rule count of the last compiled set
//   - triage_rules_skipped_total: rules dropped during compilation
//   - triage_matches_total: matched rules by tenant and source tier
//   - triage_catch_all_matches_total: turns that fell through to the
//     catch-all rule
type TriageMetrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	compilesTotal   *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	rulesActive     *prometheus.GaugeVec
	rulesSkipped    *prometheus.CounterVec

	matchesTotal  *prometheus.CounterVec
	catchAllTotal *prometheus.CounterVec

	limiter *CardinalityLimiter
}

// NewTriageMetrics creates and registers triage metrics.
func NewTriageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, limiter *CardinalityLimiter) *TriageMetrics {
	tm := &TriageMetrics{
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_cache_hits_total",
				Help:      "Compiled rule sets served from the shared cache",
			},
			[]string{"tenant"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_cache_misses_total",
				Help:      "Rule set cache lookups that required a recompile",
			},
			[]string{"tenant"},
		),
		compilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_compiles_total",
				Help:      "Rule set compilation passes",
			},
			[]string{"tenant"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_compile_duration_seconds",
				Help:      "Duration of rule set compilation",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"tenant"},
		),
		rulesActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_rules_active",
				Help:      "Rule count of the most recently compiled set",
			},
			[]string{"tenant"},
		),
		rulesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_rules_skipped_total",
				Help:      "Rules dropped during compilation as invalid or inactive",
			},
			[]string{"tenant"},
		),
		matchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_matches_total",
				Help:      "Matched rules by source tier",
			},
			[]string{"tenant", "source"},
		),
		catchAllTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triage_catch_all_matches_total",
				Help:      "Turns that fell through to the catch-all rule",
			},
			[]string{"tenant"},
		),
		limiter: limiter,
	}

	registry.MustRegister(
		tm.cacheHits,
		tm.cacheMisses,
		tm.compilesTotal,
		tm.compileDuration,
		tm.rulesActive,
		tm.rulesSkipped,
		tm.matchesTotal,
		tm.catchAllTotal,
	)

	return tm
}

// RecordCacheHit counts a compiled rule set served from the shared cache.
func (tm *TriageMetrics) RecordCacheHit(tenantID string) {
	tm.cacheHits.WithLabelValues(tm.tenant(tenantID)).Inc()
}

// RecordCacheMiss counts a rule set lookup that required a recompile.
func (tm *TriageMetrics) RecordCacheMiss(tenantID string) {
	tm.cacheMisses.WithLabelValues(tm.tenant(tenantID)).Inc()
}

// RecordCompile records one compilation pass over a tenant's rules.
func (tm *TriageMetrics) RecordCompile(tenantID string, rules, skipped int, duration time.Duration) {
	tenant := tm.tenant(tenantID)
	tm.compilesTotal.WithLabelValues(tenant).Inc()
	tm.compileDuration.WithLabelValues(tenant).Observe(duration.Seconds())
	tm.rulesActive.WithLabelValues(tenant).Set(float64(rules))
	if skipped > 0 {
		tm.rulesSkipped.WithLabelValues(tenant).Add(float64(skipped))
	}
}

// RecordMatch counts a matched rule by source tier. catchAll marks turns
// no authored rule claimed.
func (tm *TriageMetrics) RecordMatch(tenantID, source string, catchAll bool) {
	tenant := tm.tenant(tenantID)
	tm.matchesTotal.WithLabelValues(tenant, source).Inc()
	if catchAll {
		tm.catchAllTotal.WithLabelValues(tenant).Inc()
	}
}

func (tm *TriageMetrics) tenant(id string) string {
	return boundTenant(tm.limiter, "triage", id)
}
