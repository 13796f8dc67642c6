package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"halcyon-hq/switchboard/pkg/config"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/tracing"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}
	return logger
}

func decodeError(t *testing.T, body *bytes.Buffer) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, body.String())
	}
	return resp.Error
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/turns", nil))

	if seen == "" {
		t.Fatal("request context has no request ID")
	}
	if len(seen) != 32 {
		t.Errorf("generated ID %q has length %d, want 32 hex chars", seen, len(seen))
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestRequestID_HonorsClientID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/turns", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "client-supplied-id" {
		t.Errorf("context request ID = %q, want the client's", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied-id" {
		t.Errorf("response header = %q, want the client's", got)
	}
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	// Log lines flush asynchronously; Shutdown drains the buffer.
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (line %q)", err, buf.String())
	}
	if entry["msg"] != "request completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Errorf("status = %v, want 404", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for a 4xx", entry["level"])
	}
	if entry["path"] != "/missing" {
		t.Errorf("path = %v", entry["path"])
	}
}

func TestLogging_DefaultsTo200(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if err := logger.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200 for an implicit write", entry["status"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	handler := Recovery(testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("stage blew up")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	detail := decodeError(t, rec.Body)
	if detail.Type != errorTypeServerError {
		t.Errorf("error type = %q, want %q", detail.Type, errorTypeServerError)
	}
	if detail.Code != codeInternalError {
		t.Errorf("error code = %q, want %q", detail.Code, codeInternalError)
	}
}

func TestRecovery_PassesThroughNormally(t *testing.T) {
	handler := Recovery(testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestTimeout_SlowHandlerGets504(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	handler := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	detail := decodeError(t, rec.Body)
	if detail.Type != errorTypeGatewayTimeout {
		t.Errorf("error type = %q, want %q", detail.Type, errorTypeGatewayTimeout)
	}
	if detail.Code != codeTurnTimeout {
		t.Errorf("error code = %q, want %q", detail.Code, codeTurnTimeout)
	}
}

func TestTimeout_FastHandlerUntouched(t *testing.T) {
	handler := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "done") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTimeout_NoDeadlineWhenZero(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("request context has a deadline with timeout disabled")
		}
	})

	handler := Timeout(0)(inner)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
}

func TestTimeout_LateWriteAfter504IsDropped(t *testing.T) {
	wrote := make(chan struct{})
	handler := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("late body"))
		close(wrote)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))
	<-wrote

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "late body") {
		t.Errorf("late handler write reached the client: %q", rec.Body.String())
	}
}

func authTestConfig() config.AuthConfig {
	return config.AuthConfig{
		Enabled: true,
		Keys: []config.APIKeyEntry{
			{Name: "acme-prod", Key: "sk-acme-123", TenantID: "acme"},
			{Name: "ops", Key: "sk-ops-456"},
		},
	}
}

func TestAuth_DisabledPassesThrough(t *testing.T) {
	called := false
	handler := Auth(config.AuthConfig{}, testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := AuthTenant(r.Context()); ok {
			t.Error("AuthTenant set with auth disabled")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))
	if !called {
		t.Fatal("handler not called")
	}
}

func TestAuth_MissingKey(t *testing.T) {
	handler := Auth(authTestConfig(), testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler called without a key")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if detail := decodeError(t, rec.Body); detail.Type != errorTypeAuthentication {
		t.Errorf("error type = %q, want %q", detail.Type, errorTypeAuthentication)
	}
}

func TestAuth_UnknownKey(t *testing.T) {
	handler := Auth(authTestConfig(), testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler called with an unknown key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", nil)
	req.Header.Set("Authorization", "Bearer sk-wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_BearerKeyBindsTenant(t *testing.T) {
	var tenant string
	var bound bool
	handler := Auth(authTestConfig(), testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, bound = AuthTenant(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", nil)
	req.Header.Set("Authorization", "Bearer sk-acme-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bound || tenant != "acme" {
		t.Errorf("AuthTenant = (%q, %v), want (acme, true)", tenant, bound)
	}
}

func TestAuth_HeaderKeyAccepted(t *testing.T) {
	var tenant string
	handler := Auth(authTestConfig(), testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ = AuthTenant(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", nil)
	req.Header.Set("X-API-Key", "sk-acme-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if tenant != "acme" {
		t.Errorf("tenant = %q, want acme", tenant)
	}
}

func TestAuth_TenantlessKeyActsForAny(t *testing.T) {
	handler := Auth(authTestConfig(), testLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AuthTenant(r.Context()); ok {
			t.Error("tenantless key bound a tenant")
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", nil)
	req.Header.Set("Authorization", "Bearer sk-ops-456")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthTenant_EmptyContext(t *testing.T) {
	if tenant, ok := AuthTenant(context.Background()); ok || tenant != "" {
		t.Errorf("AuthTenant on empty context = (%q, %v)", tenant, ok)
	}
}

func TestTracing_NilTracerPassesThrough(t *testing.T) {
	called := false
	handler := Tracing(nil, "/v1/turns")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))

	if !called {
		t.Fatal("handler was not invoked")
	}
	if got := rec.Header().Get("X-Trace-ID"); got != "" {
		t.Errorf("X-Trace-ID = %q, want empty without a tracer", got)
	}
}

func TestTracing_DisabledTracerPassesThrough(t *testing.T) {
	tracer, err := tracing.New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("tracing.New() error = %v", err)
	}

	called := false
	handler := Tracing(tracer, "/v1/turns")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", nil))

	if !called {
		t.Fatal("handler was not invoked")
	}
	if got := rec.Header().Get("X-Trace-ID"); got != "" {
		t.Errorf("X-Trace-ID = %q, want empty when tracing is disabled", got)
	}
}
