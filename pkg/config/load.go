package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, expands ${VAR} references in secret fields,
// validates the configuration, and returns any errors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := &Config{}
	applyBoolDefaults(cfg)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	expandSecrets(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SWITCHBOARD_SECTION_FIELD (e.g., SWITCHBOARD_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// expandSecrets expands ${VAR} environment references in fields that
// typically carry credentials.
func expandSecrets(cfg *Config) {
	cfg.Completion.APIKey = os.ExpandEnv(cfg.Completion.APIKey)
	cfg.Cache.Redis.Password = os.ExpandEnv(cfg.Cache.Redis.Password)
	cfg.Alerting.WebhookURL = os.ExpandEnv(cfg.Alerting.WebhookURL)
	for i := range cfg.Security.Auth.Keys {
		cfg.Security.Auth.Keys[i].Key = os.ExpandEnv(cfg.Security.Auth.Keys[i].Key)
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format SWITCHBOARD_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("SWITCHBOARD_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("SWITCHBOARD_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("SWITCHBOARD_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("SWITCHBOARD_SERVER_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}

	// Store overrides
	if val := os.Getenv("SWITCHBOARD_STORE_BACKEND"); val != "" {
		cfg.Store.Backend = val
	}
	if val := os.Getenv("SWITCHBOARD_STORE_SQLITE_PATH"); val != "" {
		cfg.Store.SQLite.Path = val
	}

	// Cache overrides
	if val := os.Getenv("SWITCHBOARD_CACHE_BACKEND"); val != "" {
		cfg.Cache.Backend = val
	}
	if val := os.Getenv("SWITCHBOARD_CACHE_REDIS_ADDRESS"); val != "" {
		cfg.Cache.Redis.Address = val
	}
	if val := os.Getenv("SWITCHBOARD_CACHE_REDIS_PASSWORD"); val != "" {
		cfg.Cache.Redis.Password = val
	}
	if val := os.Getenv("SWITCHBOARD_CACHE_REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cache.Redis.DB = i
		}
	}

	// Completion overrides
	if val := os.Getenv("SWITCHBOARD_COMPLETION_BASE_URL"); val != "" {
		cfg.Completion.BaseURL = val
	}
	if val := os.Getenv("SWITCHBOARD_COMPLETION_API_KEY"); val != "" {
		cfg.Completion.APIKey = val
	}
	if val := os.Getenv("SWITCHBOARD_COMPLETION_MODEL"); val != "" {
		cfg.Completion.Model = val
	}
	if val := os.Getenv("SWITCHBOARD_COMPLETION_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Completion.Timeout = d
		}
	}
	if val := os.Getenv("SWITCHBOARD_COMPLETION_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Completion.MaxRetries = i
		}
	}

	// Triage overrides
	if val := os.Getenv("SWITCHBOARD_TRIAGE_RULE_SET_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Triage.RuleSetTTL = d
		}
	}
	if val := os.Getenv("SWITCHBOARD_TRIAGE_FALLBACK_ACTION"); val != "" {
		cfg.Triage.FallbackAction = val
	}

	// Policy overrides
	if val := os.Getenv("SWITCHBOARD_POLICY_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Policy.CacheTTL = d
		}
	}
	if val := os.Getenv("SWITCHBOARD_POLICY_BUDGET"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Policy.Budget = d
		}
	}

	// Session overrides
	if val := os.Getenv("SWITCHBOARD_SESSION_MISUNDERSTANDING_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Session.MisunderstandingThreshold = i
		}
	}

	// Audit overrides
	if val := os.Getenv("SWITCHBOARD_AUDIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if val := os.Getenv("SWITCHBOARD_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("SWITCHBOARD_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}
	if val := os.Getenv("SWITCHBOARD_AUDIT_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Audit.Retention.Days = i
		}
	}

	// Alerting overrides
	if val := os.Getenv("SWITCHBOARD_ALERTING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Alerting.Enabled = b
		}
	}
	if val := os.Getenv("SWITCHBOARD_ALERTING_WEBHOOK_URL"); val != "" {
		cfg.Alerting.WebhookURL = val
	}

	// Telemetry overrides
	if val := os.Getenv("SWITCHBOARD_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("SWITCHBOARD_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("SWITCHBOARD_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("SWITCHBOARD_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("SWITCHBOARD_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}

	// Security overrides
	if val := os.Getenv("SWITCHBOARD_SECURITY_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.Enabled = b
		}
	}
	if val := os.Getenv("SWITCHBOARD_SECURITY_TLS_CERT_FILE"); val != "" {
		cfg.Security.TLS.CertFile = val
	}
	if val := os.Getenv("SWITCHBOARD_SECURITY_TLS_KEY_FILE"); val != "" {
		cfg.Security.TLS.KeyFile = val
	}
}
