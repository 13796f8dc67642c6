package metrics

import (
	"time"

	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CompletionMetrics tracks calls to the language-model service.
//
// Metrics:
//   - completion_requests_total: calls by operation and outcome
//   - completion_request_duration_seconds: call latency by operation
//   - completion_retries_total: retry attempts by operation
//   - completion_tokens_total: token usage by tenant, operation, and kind
type CompletionMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec

	limiter *CardinalityLimiter
}

// NewCompletionMetrics creates and registers completion metrics.
func NewCompletionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, limiter *CardinalityLimiter) *CompletionMetrics {
	cm := &CompletionMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_requests_total",
				Help:      "Completion service calls by outcome",
			},
			[]string{"op", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_request_duration_seconds",
				Help:      "Completion service call latency including retries",
				Buckets:   cfg.TurnDurationBuckets,
			},
			[]string{"op"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_retries_total",
				Help:      "Completion service retry attempts",
			},
			[]string{"op"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_tokens_total",
				Help:      "Tokens consumed, split by prompt and completion",
			},
			[]string{"tenant", "op", "kind"},
		),
		limiter: limiter,
	}

	registry.MustRegister(
		cm.requestsTotal,
		cm.requestDuration,
		cm.retriesTotal,
		cm.tokensTotal,
	)

	return cm
}

// RecordRequest records one completion service call.
func (cm *CompletionMetrics) RecordRequest(op string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	cm.requestsTotal.WithLabelValues(op, status).Inc()
	cm.requestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRetry counts one retry attempt.
func (cm *CompletionMetrics) RecordRetry(op string) {
	cm.retriesTotal.WithLabelValues(op).Inc()
}

// RecordTokens accumulates token usage for one call.
func (cm *CompletionMetrics) RecordTokens(tenantID, op string, prompt, completion int) {
	tenant := boundTenant(cm.limiter, "completion", tenantID)
	if prompt > 0 {
		cm.tokensTotal.WithLabelValues(tenant, op, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		cm.tokensTotal.WithLabelValues(tenant, op, "completion").Add(float64(completion))
	}
}
