package metrics

import (
	"testing"
	"time"

	"halcyon-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testMetricsConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "switchboard",
	}
}

func TestNewCollector_DisabledReturnsNil(t *testing.T) {
	cfg := testMetricsConfig()
	cfg.Enabled = false

	c := NewCollector(cfg, nil)
	if c != nil {
		t.Fatal("NewCollector() with metrics disabled should return nil")
	}

	// Accessors on the nil collector must not panic.
	if c.Triage() != nil || c.Policy() != nil || c.Turn() != nil || c.Completion() != nil || c.Cache() != nil {
		t.Error("nil collector accessors should return nil recorders")
	}
	if c.Registry() != nil {
		t.Error("nil collector Registry() should return nil")
	}
	if c.Handler() == nil {
		t.Error("nil collector Handler() should still return a handler")
	}
}

func TestNewCollector_FillsDefaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, prometheus.NewRegistry())
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}
	if cfg.Namespace != "halcyon" {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, "halcyon")
	}
	if cfg.Subsystem != "switchboard" {
		t.Errorf("Subsystem = %q, want %q", cfg.Subsystem, "switchboard")
	}
	if len(cfg.TurnDurationBuckets) == 0 || len(cfg.StageDurationBuckets) == 0 {
		t.Error("duration buckets should be defaulted")
	}
}

func TestTriageMetrics(t *testing.T) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	tm := c.Triage()

	tm.RecordCacheHit("acme")
	tm.RecordCacheHit("acme")
	tm.RecordCacheMiss("acme")
	if got := testutil.ToFloat64(tm.cacheHits.WithLabelValues("acme")); got != 2 {
		t.Errorf("cache hits = %g, want 2", got)
	}
	if got := testutil.ToFloat64(tm.cacheMisses.WithLabelValues("acme")); got != 1 {
		t.Errorf("cache misses = %g, want 1", got)
	}

	tm.RecordCompile("acme", 12, 3, 4*time.Millisecond)
	if got := testutil.ToFloat64(tm.rulesActive.WithLabelValues("acme")); got != 12 {
		t.Errorf("rules active = %g, want 12", got)
	}
	if got := testutil.ToFloat64(tm.rulesSkipped.WithLabelValues("acme")); got != 3 {
		t.Errorf("rules skipped = %g, want 3", got)
	}

	tm.RecordMatch("acme", "MANUAL", false)
	tm.RecordMatch("acme", "SYSTEM", true)
	if got := testutil.ToFloat64(tm.matchesTotal.WithLabelValues("acme", "MANUAL")); got != 1 {
		t.Errorf("manual matches = %g, want 1", got)
	}
	if got := testutil.ToFloat64(tm.catchAllTotal.WithLabelValues("acme")); got != 1 {
		t.Errorf("catch-all matches = %g, want 1", got)
	}
}

func TestPolicyMetrics(t *testing.T) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	pm := c.Policy()

	pm.RecordApply("acme", "respond", 2*time.Millisecond)
	pm.RecordApply("acme", "transfer", 3*time.Millisecond)
	pm.RecordApply("acme", "respond", time.Millisecond)
	if got := testutil.ToFloat64(pm.appliesTotal.WithLabelValues("acme", "respond")); got != 2 {
		t.Errorf("respond applies = %g, want 2", got)
	}
	if got := testutil.ToFloat64(pm.appliesTotal.WithLabelValues("acme", "transfer")); got != 1 {
		t.Errorf("transfer applies = %g, want 1", got)
	}

	pm.RecordDegraded("acme")
	if got := testutil.ToFloat64(pm.degradedTotal.WithLabelValues("acme")); got != 1 {
		t.Errorf("degraded = %g, want 1", got)
	}

	pm.RecordBudgetOverrun("acme")
	if got := testutil.ToFloat64(pm.overrunsTotal.WithLabelValues("acme")); got != 1 {
		t.Errorf("overruns = %g, want 1", got)
	}

	pm.RecordTransferDenied("acme")
	if got := testutil.ToFloat64(pm.transferDenied.WithLabelValues("acme")); got != 1 {
		t.Errorf("transfer denied = %g, want 1", got)
	}

	pm.RecordCompile("acme", 8, 1, time.Millisecond)
	if got := testutil.ToFloat64(pm.patternsActive.WithLabelValues("acme")); got != 8 {
		t.Errorf("patterns active = %g, want 8", got)
	}
}

func TestTurnMetrics(t *testing.T) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	tm := c.Turn()

	tm.TurnStarted()
	if got := testutil.ToFloat64(tm.turnsInFlight); got != 1 {
		t.Errorf("in flight = %g, want 1", got)
	}
	tm.RecordTurn("acme", "respond", 80*time.Millisecond)
	if got := testutil.ToFloat64(tm.turnsInFlight); got != 0 {
		t.Errorf("in flight after RecordTurn = %g, want 0", got)
	}
	if got := testutil.ToFloat64(tm.turnsTotal.WithLabelValues("acme", "respond")); got != 1 {
		t.Errorf("turns = %g, want 1", got)
	}

	tm.RecordStagePanic("policy")
	if got := testutil.ToFloat64(tm.stagePanics.WithLabelValues("policy")); got != 1 {
		t.Errorf("stage panics = %g, want 1", got)
	}

	tm.RecordClassifyFallback("acme")
	if got := testutil.ToFloat64(tm.classifyFallbacks.WithLabelValues("acme")); got != 1 {
		t.Errorf("classify fallbacks = %g, want 1", got)
	}

	tm.RecordSafeDefault("acme")
	if got := testutil.ToFloat64(tm.safeDefaults.WithLabelValues("acme")); got != 1 {
		t.Errorf("safe defaults = %g, want 1", got)
	}

	tm.RecordEscalation("acme", "misunderstanding")
	if got := testutil.ToFloat64(tm.escalations.WithLabelValues("acme", "misunderstanding")); got != 1 {
		t.Errorf("escalations = %g, want 1", got)
	}

	tm.RecordInterruption("acme", "urgent")
	if got := testutil.ToFloat64(tm.interruptions.WithLabelValues("acme", "urgent")); got != 1 {
		t.Errorf("interruptions = %g, want 1", got)
	}
}

func TestCompletionMetrics(t *testing.T) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	cm := c.Completion()

	cm.RecordRequest("classify", 300*time.Millisecond, true)
	cm.RecordRequest("classify", 2*time.Second, false)
	if got := testutil.ToFloat64(cm.requestsTotal.WithLabelValues("classify", "success")); got != 1 {
		t.Errorf("successes = %g, want 1", got)
	}
	if got := testutil.ToFloat64(cm.requestsTotal.WithLabelValues("classify", "error")); got != 1 {
		t.Errorf("errors = %g, want 1", got)
	}

	cm.RecordRetry("classify")
	if got := testutil.ToFloat64(cm.retriesTotal.WithLabelValues("classify")); got != 1 {
		t.Errorf("retries = %g, want 1", got)
	}

	cm.RecordTokens("acme", "generate", 1000, 250)
	if got := testutil.ToFloat64(cm.tokensTotal.WithLabelValues("acme", "generate", "prompt")); got != 1000 {
		t.Errorf("prompt tokens = %g, want 1000", got)
	}
	if got := testutil.ToFloat64(cm.tokensTotal.WithLabelValues("acme", "generate", "completion")); got != 250 {
		t.Errorf("completion tokens = %g, want 250", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	cm := c.Cache()

	cm.RecordHit("memory")
	cm.RecordMiss("memory")
	cm.RecordError("redis", "get")
	cm.UpdateEntries("memory", 42)

	if got := testutil.ToFloat64(cm.hitsTotal.WithLabelValues("memory")); got != 1 {
		t.Errorf("hits = %g, want 1", got)
	}
	if got := testutil.ToFloat64(cm.missesTotal.WithLabelValues("memory")); got != 1 {
		t.Errorf("misses = %g, want 1", got)
	}
	if got := testutil.ToFloat64(cm.errorsTotal.WithLabelValues("redis", "get")); got != 1 {
		t.Errorf("errors = %g, want 1", got)
	}
	if got := testutil.ToFloat64(cm.entries.WithLabelValues("memory")); got != 42 {
		t.Errorf("entries = %g, want 42", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(3)

	for _, label := range []string{"a", "b", "c"} {
		if !limiter.Allow(label) {
			t.Errorf("Allow(%q) = false, want true", label)
		}
	}
	if limiter.Allow("d") {
		t.Error("Allow(d) = true, want false past the limit")
	}
	if !limiter.Allow("a") {
		t.Error("Allow(a) = false, existing labels stay allowed")
	}
	if limiter.Count() != 3 {
		t.Errorf("Count() = %d, want 3", limiter.Count())
	}
}

func TestBoundTenant(t *testing.T) {
	limiter := NewCardinalityLimiter(1)

	if got := boundTenant(limiter, "triage", ""); got != "unknown" {
		t.Errorf("boundTenant(empty) = %q, want unknown", got)
	}
	if got := boundTenant(limiter, "triage", "acme"); got != "acme" {
		t.Errorf("boundTenant(acme) = %q, want acme", got)
	}
	if got := boundTenant(limiter, "triage", "burst-tenant"); got != overflowTenant {
		t.Errorf("boundTenant past limit = %q, want %q", got, overflowTenant)
	}
	// nil limiter passes everything through
	if got := boundTenant(nil, "triage", "anyone"); got != "anyone" {
		t.Errorf("boundTenant(nil limiter) = %q, want anyone", got)
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Triage().RecordMatch("acme", "MANUAL", false)
				c.Policy().RecordApply("acme", "respond", time.Millisecond)
				c.Completion().RecordTokens("acme", "classify", 10, 5)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if got := testutil.ToFloat64(c.Triage().matchesTotal.WithLabelValues("acme", "MANUAL")); got != 1000 {
		t.Errorf("matches = %g, want 1000", got)
	}
	if got := testutil.ToFloat64(c.Policy().appliesTotal.WithLabelValues("acme", "respond")); got != 1000 {
		t.Errorf("applies = %g, want 1000", got)
	}
}
