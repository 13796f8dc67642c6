package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	cfg := NewDefault()
	cfg.Completion.BaseURL = "https://api.openai.com/v1"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() on valid config = %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "missing listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "negative read timeout",
			mutate:    func(c *Config) { c.Server.ReadTimeout = -time.Second },
			wantField: "server.read_timeout",
		},
		{
			name:      "unknown store backend",
			mutate:    func(c *Config) { c.Store.Backend = "dynamo" },
			wantField: "store.backend",
		},
		{
			name:      "unknown cache backend",
			mutate:    func(c *Config) { c.Cache.Backend = "memcached" },
			wantField: "cache.backend",
		},
		{
			name:      "redis backend without address",
			mutate:    func(c *Config) { c.Cache.Backend = "redis"; c.Cache.Redis.Address = "" },
			wantField: "cache.redis.address",
		},
		{
			name:      "malformed completion base url",
			mutate:    func(c *Config) { c.Completion.BaseURL = "://missing-scheme" },
			wantField: "completion.base_url",
		},
		{
			name:      "excessive completion retries",
			mutate:    func(c *Config) { c.Completion.MaxRetries = 10 },
			wantField: "completion.max_retries",
		},
		{
			name:      "unknown fallback action",
			mutate:    func(c *Config) { c.Triage.FallbackAction = "hang_up_rudely" },
			wantField: "triage.fallback_action",
		},
		{
			name:      "alert multiplier below one",
			mutate:    func(c *Config) { c.Policy.BudgetAlertMultiplier = 0.5 },
			wantField: "policy.budget_alert_multiplier",
		},
		{
			name:      "zero misunderstanding threshold",
			mutate:    func(c *Config) { c.Session.MisunderstandingThreshold = -1 },
			wantField: "session.misunderstanding_threshold",
		},
		{
			name:      "unknown pipeline stage",
			mutate:    func(c *Config) { c.Turn.Stages = []string{"silence", "teleport"} },
			wantField: "turn.stages[1]",
		},
		{
			name:      "alerting enabled without webhook",
			mutate:    func(c *Config) { c.Alerting.Enabled = true; c.Alerting.WebhookURL = "" },
			wantField: "alerting.webhook_url",
		},
		{
			name:      "tls enabled without cert",
			mutate:    func(c *Config) { c.Security.TLS.Enabled = true; c.Security.TLS.KeyFile = "k.pem" },
			wantField: "security.tls.cert_file",
		},
		{
			name:      "auth enabled without keys",
			mutate:    func(c *Config) { c.Security.Auth.Enabled = true },
			wantField: "security.auth.keys",
		},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.Security.Auth.Keys = []APIKeyEntry{
					{Name: "a", Key: "k1", TenantID: "t1"},
					{Name: "b", Key: "k1", TenantID: "t2"},
				}
			},
			wantField: "security.auth.keys[1].key",
		},
		{
			name:      "bad sample ratio",
			mutate:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:      "tracing enabled without endpoint",
			mutate:    func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			wantField: "telemetry.tracing.endpoint",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "loud" },
			wantField: "telemetry.logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Validate() errors = %v, want field %q", verr.Errors, tt.wantField)
			}
		})
	}
}

// A deployment with no completion service is legitimate: the client is
// skipped and the pipeline runs on rules and response pools alone.
func TestValidate_CompletionOptional(t *testing.T) {
	cfg := validConfig()
	cfg.Completion.BaseURL = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() without completion service = %v, want nil", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Store.Backend = "dynamo"
	cfg.Completion.BaseURL = "://missing-scheme"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error type = %T, want ValidationError", err)
	}

	if len(verr.Errors) < 3 {
		t.Errorf("Validate() collected %d errors, want at least 3: %v", len(verr.Errors), verr.Errors)
	}

	if !strings.Contains(verr.Error(), "3 errors") {
		t.Errorf("Error() should mention total count: %s", verr.Error())
	}
}

func TestFieldError_Error(t *testing.T) {
	fe := FieldError{Field: "server.listen_address", Message: "listen address is required"}
	want := "server.listen_address: listen address is required"
	if fe.Error() != want {
		t.Errorf("Error() = %q, want %q", fe.Error(), want)
	}
}
