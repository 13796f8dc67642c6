package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"halcyon-hq/switchboard/pkg/telemetry/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}
	t.Cleanup(func() { logger.Shutdown() })
	return logger
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BackoffBase = time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg Config, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	c, err := NewHTTPClient(cfg, testLogger(t), nil)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// chatBody wraps assistant content in a chat-completions response envelope.
func chatBody(t testing.TB, content string, usage Usage) []byte {
	t.Helper()
	body, err := json.Marshal(chatResponse{
		ID:      "chatcmpl-test",
		Model:   "gpt-4o-mini",
		Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}},
		Usage:   usage,
	})
	if err != nil {
		t.Fatalf("marshal chat response: %v", err)
	}
	return body
}

func TestHTTPClient_Classify(t *testing.T) {
	classification := `{"intent":"Billing_Question","entities":{"account":"4412"},"keywords":["bill","charge"],"confidence":0.92,"short_circuit":false,"response":""}`

	var gotReq chatRequest
	var gotAuth, gotPath string
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(chatBody(t, classification, Usage{PromptTokens: 40, CompletionTokens: 25, TotalTokens: 65}))
	})

	cls, err := c.Classify(context.Background(), ClassifyRequest{
		TenantID:  "acme",
		Utterance: "I have a question about my bill",
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if cls.Intent != "billing_question" {
		t.Errorf("Intent = %q, want %q", cls.Intent, "billing_question")
	}
	if cls.Entities["account"] != "4412" {
		t.Errorf("Entities[account] = %q, want %q", cls.Entities["account"], "4412")
	}
	if len(cls.Keywords) != 2 || cls.Keywords[0] != "bill" {
		t.Errorf("Keywords = %v, want [bill charge]", cls.Keywords)
	}
	if cls.Confidence != 0.92 {
		t.Errorf("Confidence = %g, want 0.92", cls.Confidence)
	}
	if cls.ShortCircuit {
		t.Error("ShortCircuit should be false")
	}
	if cls.Usage.TotalTokens != 65 {
		t.Errorf("Usage.TotalTokens = %d, want 65", cls.Usage.TotalTokens)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v, want json_object", gotReq.ResponseFormat)
	}
	if gotReq.N != 1 {
		t.Errorf("N = %d, want 1", gotReq.N)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("Messages roles unexpected: %+v", gotReq.Messages)
	}
	if gotReq.Messages[1].Content != "I have a question about my bill" {
		t.Errorf("user message = %q, want raw utterance", gotReq.Messages[1].Content)
	}
}

func TestHTTPClient_Classify_FencedJSON(t *testing.T) {
	content := "```json\n{\"intent\":\"hours\",\"confidence\":1}\n```"
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatBody(t, content, Usage{}))
	})

	cls, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "when are you open"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Intent != "hours" {
		t.Errorf("Intent = %q, want %q", cls.Intent, "hours")
	}
}

func TestHTTPClient_Classify_ConfidenceClamped(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"above one", `{"intent":"x","confidence":3.5}`, 1},
		{"below zero", `{"intent":"x","confidence":-0.2}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
				w.Write(chatBody(t, tt.content, Usage{}))
			})
			cls, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"})
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if cls.Confidence != tt.want {
				t.Errorf("Confidence = %g, want %g", cls.Confidence, tt.want)
			}
		})
	}
}

func TestHTTPClient_Classify_ShortCircuit(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantShort    bool
		wantResponse string
	}{
		{
			name:         "with reply text",
			content:      `{"intent":"hours","confidence":0.95,"short_circuit":true,"response":"We're open 8 to 5 weekdays."}`,
			wantShort:    true,
			wantResponse: "We're open 8 to 5 weekdays.",
		},
		{
			name:      "cleared when reply is blank",
			content:   `{"intent":"greeting","confidence":0.9,"short_circuit":true,"response":"  "}`,
			wantShort: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
				w.Write(chatBody(t, tt.content, Usage{}))
			})
			cls, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hi"})
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if cls.ShortCircuit != tt.wantShort {
				t.Errorf("ShortCircuit = %v, want %v", cls.ShortCircuit, tt.wantShort)
			}
			if tt.wantShort && cls.Response != tt.wantResponse {
				t.Errorf("Response = %q, want %q", cls.Response, tt.wantResponse)
			}
		})
	}
}

func TestHTTPClient_Classify_MalformedPayloadReturnsParseError(t *testing.T) {
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatBody(t, "the caller wants billing help", Usage{}))
	})

	_, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Classify() error = %v, want *ParseError", err)
	}
	if pe.RawResponse == "" {
		t.Error("RawResponse should carry the offending payload")
	}
}

func TestHTTPClient_Generate(t *testing.T) {
	var gotReq chatRequest
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(chatBody(t, "  We can get a technician out tomorrow morning.  ", Usage{PromptTokens: 80, CompletionTokens: 12, TotalTokens: 92}))
	})

	gen, err := c.Generate(context.Background(), GenerateRequest{
		TenantID:  "acme",
		Utterance: "my furnace is making a loud noise",
		Classification: &Classification{
			Intent: "service_request",
			Entities: map[string]string{
				"equipment":       "furnace",
				"callback_number": "555-0199",
			},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gen.Text != "We can get a technician out tomorrow morning." {
		t.Errorf("Text = %q, want trimmed reply", gen.Text)
	}
	if gen.Usage.TotalTokens != 92 {
		t.Errorf("Usage.TotalTokens = %d, want 92", gen.Usage.TotalTokens)
	}

	if gotReq.ResponseFormat != nil {
		t.Errorf("ResponseFormat = %+v, want nil for generation", gotReq.ResponseFormat)
	}
	user := gotReq.Messages[1].Content
	if !strings.Contains(user, "Caller said: my furnace is making a loud noise") {
		t.Errorf("user prompt missing utterance: %q", user)
	}
	if !strings.Contains(user, "Intent: service_request") {
		t.Errorf("user prompt missing intent: %q", user)
	}
	// Entity lines are sorted by key.
	if !strings.Contains(user, "callback_number: 555-0199\nequipment: furnace") {
		t.Errorf("user prompt entities not in sorted order: %q", user)
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		w.Write(chatBody(t, `{"intent":"hours","confidence":1}`, Usage{}))
	})

	cls, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "when are you open"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Intent != "hours" {
		t.Errorf("Intent = %q, want %q", cls.Intent, "hours")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("Classify() error = %v, want *ServiceError", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", se.StatusCode)
	}
	// Initial attempt plus MaxRetries re-attempts.
	if got := calls.Load(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

func TestHTTPClient_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	})

	_, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("Classify() error = %v, want *AuthError", err)
	}
	if !strings.Contains(ae.Message, "invalid api key") {
		t.Errorf("Message = %q, want service body", ae.Message)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestHTTPClient_RateLimitNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{TenantID: "acme", Utterance: "hello"})
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("Generate() error = %v, want *RateLimitError", err)
	}
	if rle.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", rle.RetryAfter)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestHTTPClient_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusBadRequest)
	})

	_, err := c.Classify(context.Background(), ClassifyRequest{TenantID: "acme", Utterance: "hello"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("Classify() error = %v, want *ServiceError", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", se.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestHTTPClient_ContextDeadlineReturnsTimeoutError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	c := newTestClient(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write(chatBody(t, `{"intent":"x","confidence":1}`, Usage{}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Classify(ctx, ClassifyRequest{TenantID: "acme", Utterance: "hello"})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Classify() error = %v, want *TimeoutError", err)
	}
}

func TestHTTPClient_EmptyChoicesReturnsParseError(t *testing.T) {
	c := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"chatcmpl-test","choices":[],"usage":{}}`))
	})

	_, err := c.Generate(context.Background(), GenerateRequest{TenantID: "acme", Utterance: "hello"})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Generate() error = %v, want *ParseError", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %s, want 0", got)
	}
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("parseRetryAfter(7) = %s, want 7s", got)
	}
	if got := parseRetryAfter("not a date"); got != 0 {
		t.Errorf("parseRetryAfter(garbage) = %s, want 0", got)
	}
	date := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(date); got <= 0 || got > 30*time.Second {
		t.Errorf("parseRetryAfter(%q) = %s, want within (0s, 30s]", date, got)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"padded", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFence(tt.in); got != tt.want {
				t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("requires base URL", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() should reject empty base URL")
		}
	})

	t.Run("rejects non-http scheme", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseURL = "ftp://llm.internal"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() should reject ftp scheme")
		}
	})

	t.Run("rejects negative retries", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseURL = "http://llm.internal"
		cfg.MaxRetries = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() should reject negative retries")
		}
	})

	t.Run("rejects out of range temperature", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseURL = "http://llm.internal"
		cfg.Temperature = 3
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() should reject temperature above 2")
		}
	})

	t.Run("fills defaults", func(t *testing.T) {
		cfg := Config{BaseURL: "http://llm.internal"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		def := DefaultConfig()
		if cfg.Model != def.Model {
			t.Errorf("Model = %q, want %q", cfg.Model, def.Model)
		}
		if cfg.Timeout != def.Timeout {
			t.Errorf("Timeout = %s, want %s", cfg.Timeout, def.Timeout)
		}
		if cfg.BackoffBase != def.BackoffBase {
			t.Errorf("BackoffBase = %s, want %s", cfg.BackoffBase, def.BackoffBase)
		}
		if cfg.MaxTokens != def.MaxTokens {
			t.Errorf("MaxTokens = %d, want %d", cfg.MaxTokens, def.MaxTokens)
		}
	})
}

func TestUsage_Add(t *testing.T) {
	var total Usage
	total.Add(Usage{PromptTokens: 40, CompletionTokens: 25, TotalTokens: 65})
	total.Add(Usage{PromptTokens: 80, CompletionTokens: 12, TotalTokens: 92})
	if total.PromptTokens != 120 || total.CompletionTokens != 37 || total.TotalTokens != 157 {
		t.Errorf("total = %+v, want {120 37 157}", total)
	}
}
