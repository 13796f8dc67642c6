package completion

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the connection and budget settings for the completion
// service client.
type Config struct {
	// BaseURL is the service root, for example "https://llm.internal/v1".
	// The chat-completions path is appended. Required.
	BaseURL string

	// APIKey is sent as a bearer token when set. Optional for gateways
	// that authenticate by network position.
	APIKey string

	// Model names the model to request. Default: "gpt-4o-mini".
	Model string

	// Timeout bounds each HTTP attempt. A caller is waiting on the line,
	// so this stays small. Default: 2s.
	Timeout time.Duration

	// MaxRetries is the number of re-attempts after a transient failure.
	// Default: 2.
	MaxRetries int

	// BackoffBase is the wait before the first retry; attempt n waits
	// BackoffBase * 2^(n-1). Default: 100ms.
	BackoffBase time.Duration

	// MaxTokens caps the completion length. Spoken replies are short.
	// Default: 256.
	MaxTokens int

	// Temperature controls sampling. Default: 0.2.
	Temperature float64

	// MaxIdleConns bounds the connection pool. Default: 10.
	MaxIdleConns int

	// MaxIdleConnsPerHost bounds per-host pooled connections. Default: 5.
	MaxIdleConnsPerHost int

	// IdleConnTimeout closes pooled connections after inactivity.
	// Default: 90s.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with conservative voice-latency budgets.
// BaseURL must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o-mini",
		Timeout:             2 * time.Second,
		MaxRetries:          2,
		BackoffBase:         100 * time.Millisecond,
		MaxTokens:           256,
		Temperature:         0.2,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Validate checks the configuration and fills unset fields with defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("completion: base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("completion: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("completion: base URL must use http or https, got %q", u.Scheme)
	}

	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("completion: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("completion: temperature must be in [0,2], got %g", c.Temperature)
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = def.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = def.IdleConnTimeout
	}
	return nil
}
