package alert

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWebhookSender_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(Alert{Severity: SeverityWarning, Message: "hello"}); err != nil {
		t.Errorf("Send() error = %v", err)
	}
}

func TestWebhookSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(Alert{Severity: SeverityCritical, Message: "retry me"}); err != nil {
		t.Errorf("Send() error = %v, want success on third attempt", err)
	}
	if calls.Load() != 3 {
		t.Errorf("webhook called %d times, want 3", calls.Load())
	}
}

func TestWebhookSender_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(Alert{Severity: SeverityCritical, Message: "rejected"}); err == nil {
		t.Error("Send() should fail on 4xx")
	}
	if calls.Load() != 1 {
		t.Errorf("webhook called %d times, want 1 (no retry on 4xx)", calls.Load())
	}
}
