package metrics

import (
	"time"

	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks policy compilation and per-turn application.
//
// Metrics:
//   - policy_cache_hits_total / policy_cache_misses_total: compiled policy
//     lookups against the shared cache, by tenant
//   - policy_compiles_total: compilation passes, by tenant
//   - policy_compile_duration_seconds: compilation latency
//   - policy_patterns_active: pattern count of the last compiled policy
//   - policy_patterns_skipped_total: patterns dropped during compilation
//   - policy_applies_total: policy applications by tenant and final action
//   - policy_apply_duration_seconds: application latency, bucketed densely
//     around the advisory budget
//   - policy_degraded_total: applications that fell back to passthrough
//   - policy_budget_overruns_total: applications past the advisory budget
//   - policy_transfer_denied_total: transfers downgraded for lacking an
//     allowed action
type PolicyMetrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	compilesTotal   *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	patternsActive  *prometheus.GaugeVec
	patternsSkipped *prometheus.CounterVec

	appliesTotal   *prometheus.CounterVec
	applyDuration  *prometheus.HistogramVec
	degradedTotal  *prometheus.CounterVec
	overrunsTotal  *prometheus.CounterVec
	transferDenied *prometheus.CounterVec

	limiter *CardinalityLimiter
}

// NewPolicyMetrics creates and registers policy metrics.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, limiter *CardinalityLimiter) *PolicyMetrics {
	pm := &PolicyMetrics{
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_cache_hits_total",
				Help:      "Compiled policies served from the shared cache",
			},
			[]string{"tenant"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_cache_misses_total",
				Help:      "Policy cache lookups that required a recompile",
			},
			[]string{"tenant"},
		),
		compilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_compiles_total",
				Help:      "Policy compilation passes",
			},
			[]string{"tenant"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_compile_duration_seconds",
				Help:      "Duration of policy compilation",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"tenant"},
		),
		patternsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_patterns_active",
				Help:      "Pattern count of the most recently compiled policy",
			},
			[]string{"tenant"},
		),
		patternsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_patterns_skipped_total",
				Help:      "Patterns dropped during compilation as invalid",
			},
			[]string{"tenant"},
		),
		appliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_applies_total",
				Help:      "Policy applications by final action",
			},
			[]string{"tenant", "action"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_apply_duration_seconds",
				Help:      "Duration of policy application per turn",
				Buckets:   cfg.StageDurationBuckets,
			},
			[]string{"tenant"},
		),
		degradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_degraded_total",
				Help:      "Policy applications that fell back to passthrough after a stage failure",
			},
			[]string{"tenant"},
		),
		overrunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_budget_overruns_total",
				Help:      "Policy applications that exceeded the advisory latency budget",
			},
			[]string{"tenant"},
		),
		transferDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_transfer_denied_total",
				Help:      "Transfers downgraded to a hand-off because the action is not allowed",
			},
			[]string{"tenant"},
		),
		limiter: limiter,
	}

	registry.MustRegister(
		pm.cacheHits,
		pm.cacheMisses,
		pm.compilesTotal,
		pm.compileDuration,
		pm.patternsActive,
		pm.patternsSkipped,
		pm.appliesTotal,
		pm.applyDuration,
		pm.degradedTotal,
		pm.overrunsTotal,
		pm.transferDenied,
	)

	return pm
}

// RecordCacheHit counts a compiled policy served from the shared cache.
func (pm *PolicyMetrics) RecordCacheHit(tenantID string) {
	pm.cacheHits.WithLabelValues(pm.tenant(tenantID)).Inc()
}

// RecordCacheMiss counts a policy lookup that required a recompile.
func (pm *PolicyMetrics) RecordCacheMiss(tenantID string) {
	pm.cacheMisses.WithLabelValues(pm.tenant(tenantID)).Inc()
}

// RecordCompile records one compilation pass over a tenant's policy.
func (pm *PolicyMetrics) RecordCompile(tenantID string, patterns, skipped int, duration time.Duration) {
	tenant := pm.tenant(tenantID)
	pm.compilesTotal.WithLabelValues(tenant).Inc()
	pm.compileDuration.WithLabelValues(tenant).Observe(duration.Seconds())
	pm.patternsActive.WithLabelValues(tenant).Set(float64(patterns))
	if skipped > 0 {
		pm.patternsSkipped.WithLabelValues(tenant).Add(float64(skipped))
	}
}

// RecordApply records one policy application and its final action.
func (pm *PolicyMetrics) RecordApply(tenantID, action string, duration time.Duration) {
	tenant := pm.tenant(tenantID)
	pm.appliesTotal.WithLabelValues(tenant, action).Inc()
	pm.applyDuration.WithLabelValues(tenant).Observe(duration.Seconds())
}

// RecordDegraded counts an application that fell back to passthrough.
func (pm *PolicyMetrics) RecordDegraded(tenantID string) {
	pm.degradedTotal.WithLabelValues(pm.tenant(tenantID)).Inc()
}

// RecordBudgetOverrun counts an application past the advisory budget.
func (pm *PolicyMetrics) RecordBudgetOverrun(tenantID string) {
	pm.overrunsTotal.WithLabelValues(pm.tenant(tenantID)).Inc()
}

// RecordTransferDenied counts a transfer downgraded to a hand-off.
func (pm *PolicyMetrics) RecordTransferDenied(tenantID string) {
	pm.transferDenied.WithLabelValues(pm.tenant(tenantID)).Inc()
}

func (pm *PolicyMetrics) tenant(id string) string {
	return boundTenant(pm.limiter, "policy", id)
}
