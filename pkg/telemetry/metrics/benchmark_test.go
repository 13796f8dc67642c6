package metrics

import (
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func BenchmarkPolicyMetrics_RecordApply(b *testing.B) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	pm := c.Policy()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pm.RecordApply("acme", "respond", 2*time.Millisecond)
	}
}

func BenchmarkTurnMetrics_RecordTurn(b *testing.B) {
	c := NewCollector(testMetricsConfig(), prometheus.NewRegistry())
	tm := c.Turn()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tm.TurnStarted()
		tm.RecordTurn("acme", "respond", 80*time.Millisecond)
	}
}

func BenchmarkCardinalityLimiter_Allow(b *testing.B) {
	limiter := NewCardinalityLimiter(maxTenantCardinality)
	for i := 0; i < 1000; i++ {
		limiter.Allow("tenant-" + strconv.Itoa(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("tenant-500")
	}
}
