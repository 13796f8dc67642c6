package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/exp/maps"

	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
	"halcyon-hq/switchboard/pkg/telemetry/tracing"
)

const (
	opClassify = "classify"
	opGenerate = "generate"

	// maxResponseBytes bounds how much of a success payload we read.
	maxResponseBytes = 1 << 20

	// maxErrorBytes bounds how much of an error payload we keep.
	maxErrorBytes = 4096

	// maxRawResponseLen bounds the payload copy kept on a ParseError.
	maxRawResponseLen = 2048
)

const classifySystemPrompt = `You classify one utterance from a phone caller.
Respond with a single JSON object and nothing else, using exactly these keys:
"intent" (short lowercase label such as "billing_question"),
"entities" (object mapping field names to string values, may be empty),
"keywords" (array of salient terms from the utterance),
"confidence" (number between 0 and 1),
"short_circuit" (true only when "response" fully answers the caller),
"response" (complete reply text when short_circuit is true, else empty string).`

const generateSystemPrompt = `You are a phone receptionist. Reply to the caller in one or two short
spoken sentences. Never invent prices, phone numbers, appointment times, or
services. If you do not know something, offer to take a message.`

// HTTPClient talks to a completion service over the chat-completions wire
// format. It retries transient failures with exponential backoff and maps
// service responses to typed errors.
type HTTPClient struct {
	cfg     Config
	url     string
	client  *http.Client
	logger  *logging.Logger
	metrics *metrics.CompletionMetrics
	health  healthState
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the completion service. The metrics
// collector may be nil.
func NewHTTPClient(cfg Config, logger *logging.Logger, cm *metrics.CompletionMetrics) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("completion: logger is required")
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	c := &HTTPClient{
		cfg: cfg,
		url: strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger:  logger,
		metrics: cm,
	}
	// Optimistic until proven otherwise.
	c.health.h.Healthy = true
	return c, nil
}

// Classify extracts structured intent from one utterance. The model is
// forced into JSON output; a payload that still fails to parse returns a
// ParseError so the caller can fall back to the raw utterance.
func (c *HTTPClient) Classify(ctx context.Context, req ClassifyRequest) (*Classification, error) {
	start := time.Now()

	system := classifySystemPrompt
	if req.Instructions != "" {
		system += "\n\n" + req.Instructions
	}

	resp, err := c.doChat(ctx, opClassify, chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Utterance},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		N:              1,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		c.observe(opClassify, start, false)
		return nil, err
	}

	content := resp.Choices[0].Message.Content
	var cls Classification
	if err := json.Unmarshal([]byte(stripFence(content)), &cls); err != nil {
		c.observe(opClassify, start, false)
		return nil, &ParseError{RawResponse: truncate(content, maxRawResponseLen), Cause: err}
	}

	cls.Intent = strings.ToLower(strings.TrimSpace(cls.Intent))
	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}
	// A short-circuit with no reply text is unusable.
	if cls.ShortCircuit && strings.TrimSpace(cls.Response) == "" {
		cls.ShortCircuit = false
	}
	cls.Usage = resp.Usage

	c.observe(opClassify, start, true)
	if c.metrics != nil {
		c.metrics.RecordTokens(req.TenantID, opClassify, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return &cls, nil
}

// Generate produces the assistant's reply for the current turn.
func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	start := time.Now()

	system := generateSystemPrompt
	if req.Instructions != "" {
		system += "\n\n" + req.Instructions
	}

	resp, err := c.doChat(ctx, opGenerate, chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: generateUserPrompt(req)},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		N:           1,
	})
	if err != nil {
		c.observe(opGenerate, start, false)
		return nil, err
	}

	c.observe(opGenerate, start, true)
	if c.metrics != nil {
		c.metrics.RecordTokens(req.TenantID, opGenerate, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return &Generation{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: resp.Usage,
	}, nil
}

// Close releases pooled connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// generateUserPrompt renders the utterance plus any classification context.
// Entity order is sorted so identical turns produce identical prompts.
func generateUserPrompt(req GenerateRequest) string {
	var sb strings.Builder
	sb.WriteString("Caller said: ")
	sb.WriteString(req.Utterance)

	cls := req.Classification
	if cls == nil {
		return sb.String()
	}
	if cls.Intent != "" {
		sb.WriteString("\nIntent: ")
		sb.WriteString(cls.Intent)
	}
	keys := maps.Keys(cls.Entities)
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteString("\n")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(cls.Entities[k])
	}
	return sb.String()
}

// doChat performs one chat-completions call with retries. Authentication
// failures, rate limits, and bad requests return immediately; network
// errors and 5xx responses are retried with exponential backoff.
func (c *HTTPClient) doChat(ctx context.Context, op string, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("completion: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.BackoffBase * time.Duration(1<<(attempt-1))
			c.logger.DebugContext(ctx, "retrying completion request",
				"op", op,
				"attempt", attempt,
				"max_retries", c.cfg.MaxRetries,
				"backoff", backoff,
			)
			if c.metrics != nil {
				c.metrics.RecordRetry(op)
			}
			select {
			case <-ctx.Done():
				return nil, &TimeoutError{Timeout: c.cfg.Timeout}
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("completion: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		// Ties the completion call to the turn's trace on the service side.
		tracing.Inject(ctx, httpReq.Header)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{Timeout: c.cfg.Timeout}
			}
			lastErr = &ServiceError{Message: "request failed", Cause: err}
			c.logger.WarnContext(ctx, "completion request failed",
				"op", op,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			// The service answered; a payload we cannot parse is still an
			// answer for health purposes.
			c.recordSuccess()
			payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			resp.Body.Close()
			if err != nil {
				return nil, &ParseError{Cause: fmt.Errorf("read response: %w", err)}
			}
			var out chatResponse
			if err := json.Unmarshal(payload, &out); err != nil {
				return nil, &ParseError{RawResponse: truncate(string(payload), maxRawResponseLen), Cause: err}
			}
			if len(out.Choices) == 0 {
				return nil, &ParseError{RawResponse: truncate(string(payload), maxRawResponseLen), Cause: fmt.Errorf("response contains no choices")}
			}
			return &out, nil
		}

		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		resp.Body.Close()
		msg := strings.TrimSpace(string(errorBody))

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			err := &AuthError{Message: msg}
			c.recordFailure(err)
			return nil, err

		case http.StatusTooManyRequests:
			return nil, &RateLimitError{
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Message:    msg,
			}

		case http.StatusBadRequest:
			return nil, &ServiceError{StatusCode: resp.StatusCode, Message: msg}

		default:
			lastErr = &ServiceError{StatusCode: resp.StatusCode, Message: msg}
			c.logger.WarnContext(ctx, "completion request returned error status",
				"op", op,
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
		}
	}

	c.recordFailure(lastErr)
	return nil, lastErr
}

func (c *HTTPClient) observe(op string, start time.Time, success bool) {
	if c.metrics != nil {
		c.metrics.RecordRequest(op, time.Since(start), success)
	}
}

// parseRetryAfter reads a Retry-After header given as either seconds or an
// HTTP date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

// stripFence removes a Markdown code fence some gateways wrap around JSON
// answers even when asked for a bare object.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Wire types for the chat-completions format.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	N              int             `json:"n"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}
