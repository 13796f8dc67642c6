package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"halcyon-hq/switchboard/pkg/config"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/tracing"
)

// contextKey scopes context values set by this package.
type contextKey string

// authTenantKey stores the tenant the request's API key is scoped to.
const authTenantKey contextKey = "auth_tenant"

// requestIDHeader is the correlation header honored on requests and set
// on responses.
const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID, keeping one the client
// already sent, and carries it in the response headers and the logging
// context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// statusWriter captures the response status for the request log.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.status = code
		sw.written = true
		sw.ResponseWriter.WriteHeader(code)
	}
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// Logging writes one line per request with method, path, status, and
// latency. Server errors log at error level, client errors at warn.
func Logging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			switch {
			case sw.status >= 500:
				logger.ErrorContext(r.Context(), "request completed", args...)
			case sw.status >= 400:
				logger.WarnContext(r.Context(), "request completed", args...)
			default:
				logger.InfoContext(r.Context(), "request completed", args...)
			}
		})
	}
}

// Recovery converts handler panics into 500 responses and keeps the
// process alive.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic in handler",
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeError(w, http.StatusInternalServerError,
						newServerError("An internal error occurred. Please try again."))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Tracing opens a server span per request, continuing any trace the
// caller sent in traceparent, and carries the trace and span IDs in the
// logging context and the X-Trace-ID response header. route is the
// registered pattern, not the raw path, so span names stay
// low-cardinality. A nil or disabled tracer passes requests through.
func Tracing(tracer *tracing.Tracer, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tracer == nil || !tracer.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tracing.Extract(r.Context(), r.Header)
			ctx, span := tracing.StartRequest(ctx, r.Method, route)
			defer span.End()

			traceID := tracing.TraceID(ctx)
			ctx = logging.WithTraceID(ctx, traceID)
			ctx = logging.WithSpanID(ctx, tracing.SpanID(ctx))
			w.Header().Set("X-Trace-ID", traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// timeoutWriter drops handler writes once the deadline response has been
// sent, so a late handler cannot interleave with the 504 body.
type timeoutWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	timedOut bool
	wrote    bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return len(b), nil
	}
	tw.wrote = true
	return tw.ResponseWriter.Write(b)
}

func (tw *timeoutWriter) timeout() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.timedOut = true
	if tw.wrote {
		// The handler already started responding; too late for a 504.
		return
	}
	tw.ResponseWriter.Header().Set("Content-Type", "application/json")
	tw.ResponseWriter.WriteHeader(http.StatusGatewayTimeout)
	_ = json.NewEncoder(tw.ResponseWriter).Encode(
		newGatewayTimeoutError("The turn took too long to complete."))
}

// Timeout bounds request handling. When the deadline passes before the
// handler finishes, the client gets a 504 and the handler's context is
// cancelled.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					tw.timeout()
				}
			}
		})
	}
}

// Auth enforces API key authentication when enabled. A valid key binds
// the request to the key's tenant; keys with no tenant act for any.
// Disabled auth passes requests through untouched.
func Auth(cfg config.AuthConfig, logger *logging.Logger) func(http.Handler) http.Handler {
	keys := make(map[string]config.APIKeyEntry, len(cfg.Keys))
	for _, entry := range cfg.Keys {
		if entry.Key != "" {
			keys[entry.Key] = entry
		}
	}

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				logger.WarnContext(r.Context(), "missing API key",
					"remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, newAuthenticationError("Missing API key."))
				return
			}
			entry, ok := keys[key]
			if !ok {
				logger.WarnContext(r.Context(), "unknown API key",
					"remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, newAuthenticationError("Invalid API key."))
				return
			}

			ctx := r.Context()
			if entry.TenantID != "" {
				ctx = context.WithValue(ctx, authTenantKey, entry.TenantID)
				ctx = logging.WithTenantID(ctx, entry.TenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// AuthTenant returns the tenant the request's API key is scoped to.
func AuthTenant(ctx context.Context) (string, bool) {
	tenant, ok := ctx.Value(authTenantKey).(string)
	return tenant, ok && tenant != ""
}
