package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultSQLitePath        = "data/switchboard.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultSQLiteWALMode     = true

	// Cache defaults
	DefaultCacheBackend           = "memory"
	DefaultCacheMaxEntries        = 10000
	DefaultCacheCleanupInterval   = time.Minute
	DefaultRedisAddress           = "127.0.0.1:6379"
	DefaultRedisDialTimeout       = 2 * time.Second
	DefaultRedisReadTimeout       = 500 * time.Millisecond
	DefaultRedisWriteTimeout      = 500 * time.Millisecond
	DefaultRedisPoolSize          = 10

	// Completion defaults
	DefaultCompletionModel       = "gpt-4o-mini"
	DefaultCompletionTimeout     = 2 * time.Second
	DefaultCompletionMaxRetries  = 2
	DefaultCompletionBackoffBase = 100 * time.Millisecond
	DefaultCompletionMaxTokens   = 256
	DefaultCompletionTemperature = 0.2

	// Triage defaults
	DefaultRuleSetTTL         = time.Hour
	DefaultFallbackAction     = "forward_to_classifier"
	DefaultMaxRules           = 500
	DefaultMaxKeywordsPerRule = 32

	// Policy defaults
	DefaultPolicyCacheTTL        = 60 * time.Second
	DefaultPolicyBudget          = 10 * time.Millisecond
	DefaultBudgetAlertMultiplier = 3.0

	// Session defaults
	DefaultSessionTTL                = 30 * time.Minute
	DefaultMisunderstandingThreshold = 2
	DefaultSilenceRepromptLimit      = 2
	DefaultMinInterruptionLength     = 3

	// Turn defaults
	DefaultMaxUtteranceLength      = 2048
	DefaultEscalationTarget        = "operator"
	DefaultMinClassifierConfidence = 0.5

	// Audit defaults
	DefaultAuditEnabled           = true
	DefaultAuditBackend           = "sqlite"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditMaxOpenConns      = 10
	DefaultAuditMaxIdleConns      = 5
	DefaultAuditWALMode           = true
	DefaultAuditBusyTimeout       = 5 * time.Second
	DefaultRecorderAsyncBuffer    = 1000
	DefaultRecorderWriteTimeout   = 5 * time.Second
	DefaultRecorderMaxFieldLength = 500
	DefaultRecorderHashResponses  = true
	DefaultRetentionDays          = 90
	DefaultRetentionSchedule      = "0 3 * * *"
	DefaultRetentionMaxRecords    = int64(0)

	// Alerting defaults
	DefaultAlertTimeout     = 5 * time.Second
	DefaultAlertQueueSize   = 256
	DefaultAlertMinSeverity = "warning"

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultLoggingBufferSize = 10000
	DefaultMetricsEnabled    = true
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "halcyon"
	DefaultMetricsSubsystem  = "switchboard"
	DefaultTracingSampler    = "ratio"
	DefaultTracingRatio      = 0.1
	DefaultTracingService    = "halcyon-switchboard"
	DefaultOTLPInsecure      = true
	DefaultOTLPTimeout       = 10 * time.Second
	DefaultHealthEnabled     = true
	DefaultLivenessPath      = "/health"
	DefaultReadinessPath     = "/ready"
	DefaultVersionPath       = "/version"
	DefaultCheckTimeout      = 5 * time.Second
)

// DefaultStages is the default pipeline stage order.
var DefaultStages = []string{
	"silence",
	"interruption",
	"normalize",
	"classify",
	"generate",
	"policy",
	"finalize",
}

// DefaultUrgentKeywords are the interruption keywords that stop speech
// immediately instead of queueing an acknowledgment.
var DefaultUrgentKeywords = []string{
	"stop", "wait", "hold on", "cancel", "emergency", "operator",
}

// DefaultTurnDurationBuckets are histogram buckets for whole-turn
// duration in seconds.
var DefaultTurnDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0}

// DefaultStageDurationBuckets are histogram buckets for per-stage
// duration in seconds, dense around the 10ms policy budget.
var DefaultStageDurationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.Memory.MaxEntries == 0 {
		cfg.Cache.Memory.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.Memory.CleanupInterval == 0 {
		cfg.Cache.Memory.CleanupInterval = DefaultCacheCleanupInterval
	}
	if cfg.Cache.Redis.Address == "" {
		cfg.Cache.Redis.Address = DefaultRedisAddress
	}
	if cfg.Cache.Redis.DialTimeout == 0 {
		cfg.Cache.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Cache.Redis.ReadTimeout == 0 {
		cfg.Cache.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if cfg.Cache.Redis.WriteTimeout == 0 {
		cfg.Cache.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if cfg.Cache.Redis.PoolSize == 0 {
		cfg.Cache.Redis.PoolSize = DefaultRedisPoolSize
	}

	// Completion defaults
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = DefaultCompletionModel
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = DefaultCompletionTimeout
	}
	if cfg.Completion.MaxRetries == 0 {
		cfg.Completion.MaxRetries = DefaultCompletionMaxRetries
	}
	if cfg.Completion.BackoffBase == 0 {
		cfg.Completion.BackoffBase = DefaultCompletionBackoffBase
	}
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = DefaultCompletionMaxTokens
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = DefaultCompletionTemperature
	}

	// Triage defaults
	if cfg.Triage.RuleSetTTL == 0 {
		cfg.Triage.RuleSetTTL = DefaultRuleSetTTL
	}
	if cfg.Triage.FallbackAction == "" {
		cfg.Triage.FallbackAction = DefaultFallbackAction
	}
	if cfg.Triage.MaxRules == 0 {
		cfg.Triage.MaxRules = DefaultMaxRules
	}
	if cfg.Triage.MaxKeywordsPerRule == 0 {
		cfg.Triage.MaxKeywordsPerRule = DefaultMaxKeywordsPerRule
	}

	// Policy defaults
	if cfg.Policy.CacheTTL == 0 {
		cfg.Policy.CacheTTL = DefaultPolicyCacheTTL
	}
	if cfg.Policy.Budget == 0 {
		cfg.Policy.Budget = DefaultPolicyBudget
	}
	if cfg.Policy.BudgetAlertMultiplier == 0 {
		cfg.Policy.BudgetAlertMultiplier = DefaultBudgetAlertMultiplier
	}

	// Session defaults
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if cfg.Session.MisunderstandingThreshold == 0 {
		cfg.Session.MisunderstandingThreshold = DefaultMisunderstandingThreshold
	}
	if cfg.Session.SilenceRepromptLimit == 0 {
		cfg.Session.SilenceRepromptLimit = DefaultSilenceRepromptLimit
	}
	if cfg.Session.MinInterruptionLength == 0 {
		cfg.Session.MinInterruptionLength = DefaultMinInterruptionLength
	}
	if len(cfg.Session.UrgentKeywords) == 0 {
		cfg.Session.UrgentKeywords = append([]string(nil), DefaultUrgentKeywords...)
	}

	// Turn defaults
	if len(cfg.Turn.Stages) == 0 {
		cfg.Turn.Stages = append([]string(nil), DefaultStages...)
	}
	if cfg.Turn.MaxUtteranceLength == 0 {
		cfg.Turn.MaxUtteranceLength = DefaultMaxUtteranceLength
	}
	if cfg.Turn.EscalationTarget == "" {
		cfg.Turn.EscalationTarget = DefaultEscalationTarget
	}
	if cfg.Turn.MinClassifierConfidence == 0 {
		cfg.Turn.MinClassifierConfidence = DefaultMinClassifierConfidence
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.MaxOpenConns == 0 {
		cfg.Audit.SQLite.MaxOpenConns = DefaultAuditMaxOpenConns
	}
	if cfg.Audit.SQLite.MaxIdleConns == 0 {
		cfg.Audit.SQLite.MaxIdleConns = DefaultAuditMaxIdleConns
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditBusyTimeout
	}
	if cfg.Audit.Recorder.AsyncBuffer == 0 {
		cfg.Audit.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Audit.Recorder.WriteTimeout == 0 {
		cfg.Audit.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if cfg.Audit.Recorder.MaxFieldLength == 0 {
		cfg.Audit.Recorder.MaxFieldLength = DefaultRecorderMaxFieldLength
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultRetentionDays
	}
	if cfg.Audit.Retention.PruneSchedule == "" {
		cfg.Audit.Retention.PruneSchedule = DefaultRetentionSchedule
	}

	// Alerting defaults
	if cfg.Alerting.Timeout == 0 {
		cfg.Alerting.Timeout = DefaultAlertTimeout
	}
	if cfg.Alerting.QueueSize == 0 {
		cfg.Alerting.QueueSize = DefaultAlertQueueSize
	}
	if cfg.Alerting.MinSeverity == "" {
		cfg.Alerting.MinSeverity = DefaultAlertMinSeverity
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.BufferSize == 0 {
		cfg.Telemetry.Logging.BufferSize = DefaultLoggingBufferSize
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.TurnDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.TurnDurationBuckets = append([]float64(nil), DefaultTurnDurationBuckets...)
	}
	if len(cfg.Telemetry.Metrics.StageDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.StageDurationBuckets = append([]float64(nil), DefaultStageDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.VersionPath == "" {
		cfg.Telemetry.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultCheckTimeout
	}
}

// applyBoolDefaults sets boolean fields whose default is true. It runs
// before YAML unmarshaling so that an absent key keeps the default while
// an explicit "false" in the file still wins.
func applyBoolDefaults(cfg *Config) {
	cfg.Store.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Audit.SQLite.WALMode = DefaultAuditWALMode
	cfg.Audit.Recorder.HashResponses = DefaultRecorderHashResponses
	cfg.Telemetry.Logging.RedactPII = true
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.OTLP.Insecure = DefaultOTLPInsecure
	cfg.Telemetry.Health.Enabled = DefaultHealthEnabled
}

// NewDefault returns a Config populated entirely with default values.
func NewDefault() *Config {
	cfg := &Config{}
	applyBoolDefaults(cfg)
	ApplyDefaults(cfg)
	return cfg
}
