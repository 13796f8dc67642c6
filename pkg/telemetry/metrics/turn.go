package metrics

import (
	"time"

	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// TurnMetrics tracks the turn pipeline end to end.
//
// Metrics:
//   - turns_total: completed turns by tenant and final action
//   - turn_duration_seconds: whole-turn latency by tenant
//   - turns_in_flight: turns currently being processed
//   - stage_duration_seconds: per-stage latency
//   - stage_panics_total: stages that panicked and were skipped
//   - classify_fallbacks_total: turns that proceeded on the raw utterance
//     after classification failed
//   - safe_defaults_total: turns answered with the maximally safe default
//     after a fatal pipeline failure
//   - escalations_total: turns escalated to a human, by reason
//   - interruptions_total: caller interruptions by kind
type TurnMetrics struct {
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	turnsInFlight prometheus.Gauge

	stageDuration *prometheus.HistogramVec
	stagePanics   *prometheus.CounterVec

	classifyFallbacks *prometheus.CounterVec
	safeDefaults      *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	interruptions     *prometheus.CounterVec

	limiter *CardinalityLimiter
}

// NewTurnMetrics creates and registers turn-pipeline metrics.
func NewTurnMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, limiter *CardinalityLimiter) *TurnMetrics {
	tm := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "turns_total",
				Help:      "Completed turns by final action",
			},
			[]string{"tenant", "action"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "turn_duration_seconds",
				Help:      "Whole-turn processing latency",
				Buckets:   cfg.TurnDurationBuckets,
			},
			[]string{"tenant"},
		),
		turnsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "turns_in_flight",
				Help:      "Turns currently being processed",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Per-stage processing latency",
				Buckets:   cfg.StageDurationBuckets,
			},
			[]string{"stage"},
		),
		stagePanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_panics_total",
				Help:      "Stages that panicked and were treated as no-ops",
			},
			[]string{"stage"},
		),
		classifyFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "classify_fallbacks_total",
				Help:      "Turns that proceeded on the raw utterance after classification failed",
			},
			[]string{"tenant"},
		),
		safeDefaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "safe_defaults_total",
				Help:      "Turns answered with the maximally safe default after a fatal failure",
			},
			[]string{"tenant"},
		),
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "escalations_total",
				Help:      "Turns escalated to a human",
			},
			[]string{"tenant", "reason"},
		),
		interruptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "interruptions_total",
				Help:      "Caller interruptions by kind",
			},
			[]string{"tenant", "kind"},
		),
		limiter: limiter,
	}

	registry.MustRegister(
		tm.turnsTotal,
		tm.turnDuration,
		tm.turnsInFlight,
		tm.stageDuration,
		tm.stagePanics,
		tm.classifyFallbacks,
		tm.safeDefaults,
		tm.escalations,
		tm.interruptions,
	)

	return tm
}

// TurnStarted marks a turn entering the pipeline.
func (tm *TurnMetrics) TurnStarted() {
	tm.turnsInFlight.Inc()
}

// RecordTurn records one completed turn with its final action.
func (tm *TurnMetrics) RecordTurn(tenantID, action string, duration time.Duration) {
	tenant := tm.tenant(tenantID)
	tm.turnsTotal.WithLabelValues(tenant, action).Inc()
	tm.turnDuration.WithLabelValues(tenant).Observe(duration.Seconds())
	tm.turnsInFlight.Dec()
}

// RecordStage records one stage's latency.
func (tm *TurnMetrics) RecordStage(stage string, duration time.Duration) {
	tm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStagePanic counts a stage that panicked and was skipped.
func (tm *TurnMetrics) RecordStagePanic(stage string) {
	tm.stagePanics.WithLabelValues(stage).Inc()
}

// RecordClassifyFallback counts a turn that proceeded unclassified.
func (tm *TurnMetrics) RecordClassifyFallback(tenantID string) {
	tm.classifyFallbacks.WithLabelValues(tm.tenant(tenantID)).Inc()
}

// RecordSafeDefault counts a turn answered with the safe default.
func (tm *TurnMetrics) RecordSafeDefault(tenantID string) {
	tm.safeDefaults.WithLabelValues(tm.tenant(tenantID)).Inc()
}

// RecordEscalation counts a turn escalated to a human.
func (tm *TurnMetrics) RecordEscalation(tenantID, reason string) {
	tm.escalations.WithLabelValues(tm.tenant(tenantID), reason).Inc()
}

// RecordInterruption counts a caller interruption by kind.
func (tm *TurnMetrics) RecordInterruption(tenantID, kind string) {
	tm.interruptions.WithLabelValues(tm.tenant(tenantID), kind).Inc()
}

func (tm *TurnMetrics) tenant(id string) string {
	return boundTenant(tm.limiter, "turn", id)
}
