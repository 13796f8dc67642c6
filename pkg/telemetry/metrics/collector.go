package metrics

import (
	"sync"

	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// maxTenantCardinality bounds unique tenant label values across all
// metric families.
const maxTenantCardinality = 10000

// overflowTenant replaces tenant labels past the cardinality limit.
const overflowTenant = "other"

// Collector owns every Prometheus metric the gateway exports. It wires
// the per-component metric families to one registry and hands out typed
// recorders so components cannot mix label vocabularies by accident.
//
// A nil *Collector is valid: every accessor returns a nil recorder and
// recorders are nil-checked at their call sites.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	triage     *TriageMetrics
	policy     *PolicyMetrics
	turn       *TurnMetrics
	completion *CompletionMetrics
	cache      *CacheMetrics

	limiter *CardinalityLimiter
}

// NewCollector builds the metric families and registers them with registry.
// If registry is nil, a fresh one is created. Returns nil when metrics are
// disabled in the configuration.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "halcyon"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "switchboard"
	}
	if len(cfg.TurnDurationBuckets) == 0 {
		cfg.TurnDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0}
	}
	if len(cfg.StageDurationBuckets) == 0 {
		cfg.StageDurationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5}
	}

	limiter := NewCardinalityLimiter(maxTenantCardinality)

	return &Collector{
		config:     cfg,
		registry:   registry,
		limiter:    limiter,
		triage:     NewTriageMetrics(cfg, registry, limiter),
		policy:     NewPolicyMetrics(cfg, registry, limiter),
		turn:       NewTurnMetrics(cfg, registry, limiter),
		completion: NewCompletionMetrics(cfg, registry, limiter),
		cache:      NewCacheMetrics(cfg, registry),
	}
}

// Triage returns the triage recorder. Safe on a nil Collector.
func (c *Collector) Triage() *TriageMetrics {
	if c == nil {
		return nil
	}
	return c.triage
}

// Policy returns the policy recorder. Safe on a nil Collector.
func (c *Collector) Policy() *PolicyMetrics {
	if c == nil {
		return nil
	}
	return c.policy
}

// Turn returns the turn-pipeline recorder. Safe on a nil Collector.
func (c *Collector) Turn() *TurnMetrics {
	if c == nil {
		return nil
	}
	return c.turn
}

// Completion returns the completion-client recorder. Safe on a nil Collector.
func (c *Collector) Completion() *CompletionMetrics {
	if c == nil {
		return nil
	}
	return c.completion
}

// Cache returns the cache recorder. Safe on a nil Collector.
func (c *Collector) Cache() *CacheMetrics {
	if c == nil {
		return nil
	}
	return c.cache
}

// Registry returns the Prometheus registry, or nil when the collector is
// nil.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// boundTenant maps a tenant ID to its metric label, folding overflow
// beyond the cardinality limit into overflowTenant.
func boundTenant(l *CardinalityLimiter, scope, tenantID string) string {
	if tenantID == "" {
		return "unknown"
	}
	if l != nil && !l.Allow(scope+":"+tenantID) {
		return overflowTenant
	}
	return tenantID
}

// CardinalityLimiter bounds the number of unique label combinations so a
// misbehaving caller population cannot blow up the metric store.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing at most maxCardinality
// distinct label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether the label set may be used. Known label sets are
// always allowed; new ones are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current number of tracked label sets.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
