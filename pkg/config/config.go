package config

import "time"

// Config is the root configuration structure for Halcyon Switchboard.
// It contains all configuration sections for the turn API server, rule
// triage, the policy engine, session tracking, completion access, audit
// storage, and telemetry.
type Config struct {
	// Server contains HTTP server configuration for the turn API including
	// listen address, timeouts, and connection limits.
	Server ServerConfig `yaml:"server"`

	// Security contains security-related configuration including TLS
	// settings and API key authentication.
	Security SecurityConfig `yaml:"security"`

	// Store contains configuration for the document store that holds
	// authored rules, generated rules, response pools, and policies.
	Store StoreConfig `yaml:"store"`

	// Cache contains configuration for the compiled artifact cache.
	Cache CacheConfig `yaml:"cache"`

	// Completion contains configuration for the LLM completion service used
	// for keyword extraction and response generation.
	Completion CompletionConfig `yaml:"completion"`

	// Triage contains configuration for rule compilation and matching.
	Triage TriageConfig `yaml:"triage"`

	// Policy contains configuration for the response policy engine.
	Policy PolicyConfig `yaml:"policy"`

	// Session contains configuration for per-call session state.
	Session SessionConfig `yaml:"session"`

	// Turn contains configuration for the turn pipeline.
	Turn TurnConfig `yaml:"turn"`

	// Audit contains configuration for decision audit recording.
	Audit AuditConfig `yaml:"audit"`

	// Alerting contains configuration for operational alert delivery.
	Alerting AlertingConfig `yaml:"alerting"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the turn API HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. A zero or negative value means no timeout.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If IdleTimeout is zero, ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Turns still in flight after this timeout are abandoned.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds the total processing time of a single turn
	// request, including completion calls.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// Auth contains API key authentication configuration.
	Auth AuthConfig `yaml:"auth"`

	// TLS contains TLS configuration for the server.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig contains API key authentication configuration.
type AuthConfig struct {
	// Enabled controls whether API key authentication is enforced.
	// When false, requests may name any tenant. Intended for development only.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Keys is the list of accepted API keys and the tenant each key
	// is scoped to.
	Keys []APIKeyEntry `yaml:"keys"`
}

// APIKeyEntry binds an API key to a tenant.
type APIKeyEntry struct {
	// Name is a descriptive label for the key, used in logs.
	Name string `yaml:"name"`

	// Key is the API key value. Supports environment variable expansion
	// (e.g., "${SWITCHBOARD_API_KEY}").
	Key string `yaml:"key"`

	// TenantID is the tenant this key is allowed to act for.
	TenantID string `yaml:"tenant_id"`
}

// TLSConfig contains TLS configuration for the server.
type TLSConfig struct {
	// Enabled controls whether the server terminates TLS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM-encoded server certificate.
	// Required when Enabled is true.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key.
	// Required when Enabled is true.
	KeyFile string `yaml:"key_file"`
}

// StoreConfig contains configuration for the document store.
type StoreConfig struct {
	// Backend specifies the document store backend.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/switchboard.db"
	Path string `yaml:"path"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`
}

// CacheConfig contains configuration for the compiled artifact cache.
type CacheConfig struct {
	// Backend specifies the cache backend.
	// Options: "memory" (single instance), "redis" (shared)
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Memory contains in-process cache configuration.
	Memory MemoryCacheConfig `yaml:"memory"`

	// Redis contains Redis cache configuration.
	Redis RedisConfig `yaml:"redis"`
}

// MemoryCacheConfig contains in-process cache configuration.
type MemoryCacheConfig struct {
	// MaxEntries is the maximum number of cached artifacts before LRU
	// eviction. 0 means unlimited.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// CleanupInterval is how often expired entries are swept.
	// Default: 1m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RedisConfig contains Redis cache configuration.
type RedisConfig struct {
	// Address is the Redis server address.
	// Default: "127.0.0.1:6379"
	Address string `yaml:"address"`

	// Password authenticates to the Redis server. Supports environment
	// variable expansion. Leave empty for no authentication.
	Password string `yaml:"password"`

	// DB is the Redis logical database number.
	// Default: 0
	DB int `yaml:"db"`

	// DialTimeout is the timeout for establishing connections.
	// Default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads.
	// Default: 500ms
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the timeout for socket writes.
	// Default: 500ms
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `yaml:"pool_size"`
}

// CompletionConfig contains configuration for the LLM completion service.
type CompletionConfig struct {
	// BaseURL is the base URL for the completion API endpoint.
	// Example: "https://api.openai.com/v1"
	// Empty disables the completion client; triage rules and response
	// pools then carry every turn.
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the completion service.
	// Supports environment variable expansion (e.g., "${COMPLETION_API_KEY}").
	APIKey string `yaml:"api_key"`

	// Model is the model identifier sent with every request.
	// Default: "gpt-4o-mini"
	Model string `yaml:"model"`

	// Timeout is the maximum duration for a single completion request.
	// Kept strict: a caller is waiting on the line.
	// Default: 2s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the maximum number of retry attempts for failed requests.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the base delay for exponential retry backoff.
	// Attempt n waits BackoffBase * 2^(n-1).
	// Default: 100ms
	BackoffBase time.Duration `yaml:"backoff_base"`

	// MaxTokens caps the completion length.
	// Default: 256
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls sampling randomness.
	// Default: 0.2
	Temperature float64 `yaml:"temperature"`
}

// TriageConfig contains configuration for rule compilation and matching.
type TriageConfig struct {
	// RuleSetTTL is how long a compiled rule set stays cached before it is
	// recompiled from the document store. Mutations invalidate eagerly;
	// the TTL is the backstop against a missed invalidation.
	// Default: 1h
	RuleSetTTL time.Duration `yaml:"rule_set_ttl"`

	// FallbackAction is the action carried by the synthesized catch-all
	// rule when no authored rule matches.
	// Options: "forward_to_classifier", "take_message", "escalate"
	// Default: "forward_to_classifier"
	FallbackAction string `yaml:"fallback_action"`

	// MaxRules caps the number of rules compiled per tenant. Compilation
	// fails when the store returns more.
	// Default: 500
	MaxRules int `yaml:"max_rules"`

	// MaxKeywordsPerRule caps keyword list length per rule.
	// Default: 32
	MaxKeywordsPerRule int `yaml:"max_keywords_per_rule"`
}

// PolicyConfig contains configuration for the response policy engine.
type PolicyConfig struct {
	// CacheTTL is how long a compiled policy stays cached before it is
	// recompiled from the document store.
	// Default: 60s
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Budget is the advisory latency budget for a full policy pass.
	// Exceeding it logs a warning and records a metric; the pass is
	// never aborted.
	// Default: 10ms
	Budget time.Duration `yaml:"budget"`

	// BudgetAlertMultiplier triggers an operational alert when a pass
	// exceeds Budget by this factor.
	// Default: 3.0
	BudgetAlertMultiplier float64 `yaml:"budget_alert_multiplier"`
}

// SessionConfig contains configuration for per-call session state.
type SessionConfig struct {
	// TTL is how long idle session state is kept before expiry.
	// Default: 30m
	TTL time.Duration `yaml:"ttl"`

	// MisunderstandingThreshold is the number of consecutive failed
	// classifications tolerated before the call escalates to a human.
	// Default: 2
	MisunderstandingThreshold int `yaml:"misunderstanding_threshold"`

	// SilenceRepromptLimit is the number of reprompts issued for silent
	// turns before the call is ended politely.
	// Default: 2
	SilenceRepromptLimit int `yaml:"silence_reprompt_limit"`

	// MinInterruptionLength is the minimum interruption fragment length,
	// in characters after normalization, that is treated as intentional
	// speech rather than noise.
	// Default: 3
	MinInterruptionLength int `yaml:"min_interruption_length"`

	// UrgentKeywords are words in an interruption fragment that stop
	// speech immediately instead of queueing an acknowledgment.
	// Default: ["stop", "wait", "hold on", "cancel", "emergency", "operator"]
	UrgentKeywords []string `yaml:"urgent_keywords"`
}

// TurnConfig contains configuration for the turn pipeline.
type TurnConfig struct {
	// Stages is the ordered list of pipeline stages to run. Unknown stage
	// names fail validation at startup rather than at call time.
	// Default: ["silence", "interruption", "normalize", "classify",
	// "generate", "policy", "finalize"]
	Stages []string `yaml:"stages"`

	// TenantStages overrides the stage list for individual tenants. A
	// tenant absent from the map runs the default Stages order.
	TenantStages map[string][]string `yaml:"tenant_stages"`

	// MaxUtteranceLength is the maximum accepted utterance length in
	// bytes. Longer input is truncated before processing.
	// Default: 2048
	MaxUtteranceLength int `yaml:"max_utterance_length"`

	// EscalationTarget is the transfer destination used when the pipeline
	// must hand the call to a human: repeated misunderstandings, or rule
	// compilation failing with nothing cached.
	// Default: "operator"
	EscalationTarget string `yaml:"escalation_target"`

	// MinClassifierConfidence is the lowest completion-service confidence
	// accepted as a classification when no authored rule matched. Lower
	// scores fall through to the misunderstanding ladder.
	// Default: 0.5
	MinClassifierConfidence float64 `yaml:"min_classifier_confidence"`
}

// AuditConfig contains configuration for decision audit recording.
type AuditConfig struct {
	// Enabled controls whether audit recording is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend specifies the audit storage backend.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration for audit storage.
	SQLite AuditSQLiteConfig `yaml:"sqlite"`

	// Recorder contains audit recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// AuditSQLiteConfig contains SQLite configuration for audit storage.
type AuditSQLiteConfig struct {
	// Path is the file path for the audit database.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig contains audit recorder configuration.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer. Records
	// are dropped and counted when the buffer is full.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxFieldLength is the maximum length for text fields before truncation.
	// Default: 500
	MaxFieldLength int `yaml:"max_field_length"`

	// HashResponses stores a SHA-256 digest of final responses instead of
	// raw text, keeping caller PII out of the audit trail.
	// Default: true
	HashResponses bool `yaml:"hash_responses"`
}

// RetentionConfig contains audit retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain audit records.
	// 0 means keep records forever (no pruning).
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// AlertingConfig contains configuration for operational alert delivery.
type AlertingConfig struct {
	// Enabled controls whether alerts are dispatched.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// WebhookURL is the endpoint alerts are POSTed to.
	// Required when Enabled is true.
	WebhookURL string `yaml:"webhook_url"`

	// Timeout is the per-delivery HTTP timeout.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// QueueSize is the size of the async dispatch queue. Alerts are
	// dropped and counted when the queue is full.
	// Default: 256
	QueueSize int `yaml:"queue_size"`

	// MinSeverity is the lowest severity that is delivered.
	// Options: "info", "warning", "critical"
	// Default: "warning"
	MinSeverity string `yaml:"min_severity"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic caller PII redaction in logs.
	// Redacts phone numbers, emails, addresses, SSNs, etc.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// BufferSize is the size of the async log buffer in lines.
	// Default: 10000
	BufferSize int `yaml:"buffer_size"`

	// RedactPatterns contains custom PII redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Port is an optional separate port for metrics (0 = use server port).
	// Default: 0
	Port int `yaml:"port"`

	// Namespace is the metric name prefix.
	// Default: "halcyon"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "switchboard"
	Subsystem string `yaml:"subsystem"`

	// TurnDurationBuckets defines histogram buckets for whole-turn
	// duration in seconds.
	// Default: [0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0]
	TurnDurationBuckets []float64 `yaml:"turn_duration_buckets"`

	// StageDurationBuckets defines histogram buckets for per-stage
	// duration in seconds. The policy stage budget sits at 10ms, so the
	// buckets are dense around it.
	// Default: [0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5]
	StageDurationBuckets []float64 `yaml:"stage_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1 (10%)
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "halcyon-switchboard"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for the version information endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
