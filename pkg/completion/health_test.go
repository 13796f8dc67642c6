package completion

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
)

func TestHTTPClient_HealthStartsOptimistic(t *testing.T) {
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {})
	if !c.Healthy() {
		t.Error("new client should start healthy")
	}
	h := c.Health()
	if h.ConsecutiveFailures != 0 || h.TotalRequests != 0 {
		t.Errorf("initial snapshot = %+v, want zero counters", h)
	}
}

func TestHTTPClient_HealthMarksUnhealthyAfterConsecutiveFailures(t *testing.T) {
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	// Each exhausted call counts as one failure regardless of retries.
	for i := 0; i < unhealthyThreshold; i++ {
		if _, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"}); err == nil {
			t.Fatal("Classify() should fail against a 503 server")
		}
		wantHealthy := i < unhealthyThreshold-1
		if got := c.Healthy(); got != wantHealthy {
			t.Errorf("after %d failures Healthy() = %v, want %v", i+1, got, wantHealthy)
		}
	}

	h := c.Health()
	if h.ConsecutiveFailures != unhealthyThreshold {
		t.Errorf("ConsecutiveFailures = %d, want %d", h.ConsecutiveFailures, unhealthyThreshold)
	}
	if h.FailedRequests != int64(unhealthyThreshold) {
		t.Errorf("FailedRequests = %d, want %d", h.FailedRequests, unhealthyThreshold)
	}
	if h.LastError == nil {
		t.Error("LastError should carry the final failure")
	}
}

func TestHTTPClient_HealthRecoversOnSuccess(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write(chatBody(t, `{"intent":"hours","confidence":1}`, Usage{}))
	})

	for i := 0; i < unhealthyThreshold; i++ {
		c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"})
	}
	if c.Healthy() {
		t.Fatal("client should be unhealthy after repeated failures")
	}

	failing.Store(false)
	if _, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"}); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	h := c.Health()
	if !h.Healthy {
		t.Error("one success should mark the service healthy again")
	}
	if h.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", h.ConsecutiveFailures)
	}
	if h.LastError != nil {
		t.Errorf("LastError = %v, want nil", h.LastError)
	}
	if h.LastSuccess.IsZero() {
		t.Error("LastSuccess should be stamped")
	}
	if h.TotalRequests != int64(unhealthyThreshold)+1 {
		t.Errorf("TotalRequests = %d, want %d", h.TotalRequests, unhealthyThreshold+1)
	}
}

func TestHTTPClient_HealthUnparseablePayloadStillCountsAsAnswer(t *testing.T) {
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatBody(t, "not json at all", Usage{}))
	})

	if _, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"}); err == nil {
		t.Fatal("Classify() should fail on an unparseable payload")
	}

	h := c.Health()
	if !h.Healthy {
		t.Error("a reachable service that answers garbage is still reachable")
	}
	if h.FailedRequests != 0 {
		t.Errorf("FailedRequests = %d, want 0", h.FailedRequests)
	}
}
