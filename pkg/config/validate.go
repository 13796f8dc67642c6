package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// knownStages is the set of pipeline stage names the orchestrator can run.
var knownStages = map[string]bool{
	"silence":      true,
	"interruption": true,
	"normalize":    true,
	"classify":     true,
	"generate":     true,
	"policy":       true,
	"finalize":     true,
}

// knownFallbackActions is the set of actions the catch-all rule may carry.
var knownFallbackActions = map[string]bool{
	"forward_to_classifier": true,
	"take_message":          true,
	"escalate":              true,
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateCompletion(&cfg.Completion)...)
	errs = append(errs, validateTriage(&cfg.Triage)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateTurn(&cfg.Turn)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateAlerting(&cfg.Alerting)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.request_timeout",
			Message: "request timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validateSecurity validates security configuration.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "cert file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
	}

	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		errs = append(errs, FieldError{
			Field:   "security.auth.keys",
			Message: "at least one API key is required when auth is enabled",
		})
	}

	seen := make(map[string]bool)
	for i, key := range cfg.Auth.Keys {
		prefix := fmt.Sprintf("security.auth.keys[%d]", i)
		if key.Key == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".key",
				Message: "key value is required",
			})
		}
		if key.TenantID == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".tenant_id",
				Message: "tenant_id is required",
			})
		}
		if key.Key != "" && seen[key.Key] {
			errs = append(errs, FieldError{
				Field:   prefix + ".key",
				Message: "duplicate key value",
			})
		}
		seen[key.Key] = true
	}

	return errs
}

// validateStore validates document store configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (expected \"sqlite\" or \"memory\")", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "store.sqlite.path",
			Message: "database path is required for the sqlite backend",
		})
	}

	return errs
}

// validateCache validates cache configuration.
func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("unknown backend %q (expected \"memory\" or \"redis\")", cfg.Backend),
		})
	}

	if cfg.Backend == "redis" && cfg.Redis.Address == "" {
		errs = append(errs, FieldError{
			Field:   "cache.redis.address",
			Message: "address is required for the redis backend",
		})
	}

	if cfg.Memory.MaxEntries < 0 {
		errs = append(errs, FieldError{
			Field:   "cache.memory.max_entries",
			Message: "max entries must be non-negative",
		})
	}

	return errs
}

// validateCompletion validates completion service configuration. An
// empty base URL is valid: the completion client is simply not built
// and triage rules plus response pools carry every turn.
func validateCompletion(cfg *CompletionConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			errs = append(errs, FieldError{
				Field:   "completion.base_url",
				Message: fmt.Sprintf("invalid URL format: %v", err),
			})
		}
	}

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "completion.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{
			Field:   "completion.max_retries",
			Message: "max retries must be non-negative",
		})
	}
	if cfg.MaxRetries > 5 {
		errs = append(errs, FieldError{
			Field:   "completion.max_retries",
			Message: "max retries above 5 would blow the turn latency budget",
		})
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		errs = append(errs, FieldError{
			Field:   "completion.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	return errs
}

// validateTriage validates triage configuration.
func validateTriage(cfg *TriageConfig) []FieldError {
	var errs []FieldError

	if cfg.RuleSetTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "triage.rule_set_ttl",
			Message: "rule set TTL must be positive",
		})
	}

	if cfg.FallbackAction != "" && !knownFallbackActions[cfg.FallbackAction] {
		errs = append(errs, FieldError{
			Field:   "triage.fallback_action",
			Message: fmt.Sprintf("unknown fallback action %q", cfg.FallbackAction),
		})
	}

	if cfg.MaxRules < 0 {
		errs = append(errs, FieldError{
			Field:   "triage.max_rules",
			Message: "max rules must be non-negative",
		})
	}
	if cfg.MaxKeywordsPerRule < 0 {
		errs = append(errs, FieldError{
			Field:   "triage.max_keywords_per_rule",
			Message: "max keywords per rule must be non-negative",
		})
	}

	return errs
}

// validatePolicy validates policy engine configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.cache_ttl",
			Message: "cache TTL must be positive",
		})
	}
	if cfg.Budget < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.budget",
			Message: "budget must be positive",
		})
	}
	if cfg.BudgetAlertMultiplier < 1 {
		errs = append(errs, FieldError{
			Field:   "policy.budget_alert_multiplier",
			Message: "budget alert multiplier must be at least 1",
		})
	}

	return errs
}

// validateSession validates session configuration.
func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError

	if cfg.TTL < 0 {
		errs = append(errs, FieldError{
			Field:   "session.ttl",
			Message: "TTL must be positive",
		})
	}
	if cfg.MisunderstandingThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "session.misunderstanding_threshold",
			Message: "misunderstanding threshold must be at least 1",
		})
	}
	if cfg.SilenceRepromptLimit < 1 {
		errs = append(errs, FieldError{
			Field:   "session.silence_reprompt_limit",
			Message: "silence reprompt limit must be at least 1",
		})
	}
	if cfg.MinInterruptionLength < 1 {
		errs = append(errs, FieldError{
			Field:   "session.min_interruption_length",
			Message: "min interruption length must be at least 1",
		})
	}

	return errs
}

// validateTurn validates turn pipeline configuration.
func validateTurn(cfg *TurnConfig) []FieldError {
	var errs []FieldError

	for i, stage := range cfg.Stages {
		if !knownStages[stage] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("turn.stages[%d]", i),
				Message: fmt.Sprintf("unknown stage %q", stage),
			})
		}
	}

	for tenant, stages := range cfg.TenantStages {
		for i, stage := range stages {
			if !knownStages[stage] {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("turn.tenant_stages.%s[%d]", tenant, i),
					Message: fmt.Sprintf("unknown stage %q", stage),
				})
			}
		}
	}

	if cfg.MaxUtteranceLength < 0 {
		errs = append(errs, FieldError{
			Field:   "turn.max_utterance_length",
			Message: "max utterance length must be non-negative",
		})
	}

	if cfg.MinClassifierConfidence < 0 || cfg.MinClassifierConfidence > 1 {
		errs = append(errs, FieldError{
			Field:   "turn.min_classifier_confidence",
			Message: "min classifier confidence must be between 0 and 1",
		})
	}

	return errs
}

// validateAudit validates audit configuration.
func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("unknown backend %q (expected \"sqlite\" or \"memory\")", cfg.Backend),
		})
	}

	if cfg.Enabled && cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite.path",
			Message: "database path is required for the sqlite backend",
		})
	}

	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.recorder.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.max_records",
			Message: "max records must be non-negative",
		})
	}

	return errs
}

// validateAlerting validates alerting configuration.
func validateAlerting(cfg *AlertingConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && cfg.WebhookURL == "" {
		errs = append(errs, FieldError{
			Field:   "alerting.webhook_url",
			Message: "webhook URL is required when alerting is enabled",
		})
	}
	if cfg.WebhookURL != "" {
		if _, err := url.Parse(cfg.WebhookURL); err != nil {
			errs = append(errs, FieldError{
				Field:   "alerting.webhook_url",
				Message: fmt.Sprintf("invalid URL format: %v", err),
			})
		}
	}

	switch cfg.MinSeverity {
	case "", "info", "warning", "critical":
	default:
		errs = append(errs, FieldError{
			Field:   "alerting.min_severity",
			Message: fmt.Sprintf("unknown severity %q", cfg.MinSeverity),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown log level %q", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "", "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown log format %q", cfg.Logging.Format),
		})
	}

	switch cfg.Tracing.Sampler {
	case "", "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("unknown sampler %q", cfg.Tracing.Sampler),
		})
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.port",
			Message: "port must be between 0 and 65535",
		})
	}

	return errs
}
