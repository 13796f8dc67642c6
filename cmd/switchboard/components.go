package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"halcyon-hq/switchboard/pkg/alert"
	"halcyon-hq/switchboard/pkg/audit"
	"halcyon-hq/switchboard/pkg/cache"
	"halcyon-hq/switchboard/pkg/completion"
	"halcyon-hq/switchboard/pkg/config"
	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/policy/engine"
	"halcyon-hq/switchboard/pkg/session"
	"halcyon-hq/switchboard/pkg/store"
	"halcyon-hq/switchboard/pkg/telemetry/health"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
	"halcyon-hq/switchboard/pkg/telemetry/tracing"
	"halcyon-hq/switchboard/pkg/triage"
	"halcyon-hq/switchboard/pkg/turn"
)

// components holds every assembled collaborator of the turn pipeline.
// Close releases them in reverse dependency order, flushing async
// writers before their storage goes away.
type components struct {
	logger *logging.Logger

	collector *metrics.Collector
	tracer    *tracing.Tracer

	store    store.Store
	cache    cache.Cache
	sessions session.Store

	completion   completion.Client
	alerts       *alert.Dispatcher
	auditStorage audit.Storage
	recorder     *audit.Recorder
	pruner       *audit.Pruner

	orchestrator *turn.Orchestrator
	health       *health.Checker
}

// buildComponents assembles the pipeline from configuration. On error the
// partially built set is closed before returning.
func buildComponents(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*components, error) {
	c := &components{logger: logger}

	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	// Metrics and tracing come first so every later component can take
	// its recorder. Both are nil-safe when disabled.
	c.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	c.tracer = tracer

	st, err := buildStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	c.store = st

	c.cache = buildCache(cfg.Cache, c.collector)

	if cfg.Completion.BaseURL != "" {
		client, err := completion.NewHTTPClient(completion.Config{
			BaseURL:     cfg.Completion.BaseURL,
			APIKey:      cfg.Completion.APIKey,
			Model:       cfg.Completion.Model,
			Timeout:     cfg.Completion.Timeout,
			MaxRetries:  cfg.Completion.MaxRetries,
			BackoffBase: cfg.Completion.BackoffBase,
			MaxTokens:   cfg.Completion.MaxTokens,
			Temperature: cfg.Completion.Temperature,
		}, logger, c.collector.Completion())
		if err != nil {
			return nil, fmt.Errorf("completion client: %w", err)
		}
		c.completion = client
	} else {
		logger.Warn("no completion service configured; rules and response pools carry every turn")
	}

	compiler := triage.NewCompiler(st, c.cache, triage.CompilerConfig{
		TTL:                cfg.Triage.RuleSetTTL,
		FallbackAction:     cfg.Triage.FallbackAction,
		MaxRules:           cfg.Triage.MaxRules,
		MaxKeywordsPerRule: cfg.Triage.MaxKeywordsPerRule,
	}, logger, c.collector.Triage())
	matcher := triage.NewMatcher(c.collector.Triage())

	c.alerts = alert.NewDispatcher(cfg.Alerting, logger)

	manager := policy.NewManager(st, c.cache, policy.ManagerConfig{
		TTL: cfg.Policy.CacheTTL,
	}, logger, c.collector.Policy())

	eng, err := engine.New(&engine.EngineConfig{
		Budget:                cfg.Policy.Budget,
		BudgetAlertMultiplier: cfg.Policy.BudgetAlertMultiplier,
	}, logger, c.collector.Policy(), c.alerts)
	if err != nil {
		return nil, fmt.Errorf("policy engine: %w", err)
	}

	machine := session.NewMachine(session.MachineConfig{
		MisunderstandingThreshold: cfg.Session.MisunderstandingThreshold,
		SilenceRepromptLimit:      cfg.Session.SilenceRepromptLimit,
		MinInterruptionLength:     cfg.Session.MinInterruptionLength,
		UrgentKeywords:            cfg.Session.UrgentKeywords,
	})

	// Redis-backed sessions let several instances share live calls;
	// otherwise state stays in process and dies with it.
	if cfg.Cache.Backend == "redis" {
		c.sessions = session.NewCacheStore(c.cache, cfg.Session.TTL)
	} else {
		c.sessions = session.NewMemoryStore(cfg.Session.TTL, 0)
	}

	var auditor turn.Auditor
	if cfg.Audit.Enabled {
		storage, err := buildAuditStorage(cfg.Audit)
		if err != nil {
			return nil, fmt.Errorf("audit storage: %w", err)
		}
		c.auditStorage = storage

		recorder, err := audit.NewRecorder(storage, &audit.RecorderConfig{
			AsyncBuffer:    cfg.Audit.Recorder.AsyncBuffer,
			WriteTimeout:   cfg.Audit.Recorder.WriteTimeout,
			MaxFieldLength: cfg.Audit.Recorder.MaxFieldLength,
			HashResponses:  cfg.Audit.Recorder.HashResponses,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("audit recorder: %w", err)
		}
		c.recorder = recorder
		auditor = recorder

		if cfg.Audit.Retention.PruneSchedule != "" {
			pruner, err := audit.NewPruner(storage, &audit.RetentionConfig{
				Days:       cfg.Audit.Retention.Days,
				Schedule:   cfg.Audit.Retention.PruneSchedule,
				MaxRecords: cfg.Audit.Retention.MaxRecords,
			}, logger)
			if err != nil {
				return nil, fmt.Errorf("audit pruner: %w", err)
			}
			if err := pruner.Start(ctx); err != nil {
				logger.Warn("audit retention scheduler failed to start", "error", err)
			} else {
				c.pruner = pruner
			}
		}
	}

	orch, err := turn.New(turn.Config{
		Stages:                  cfg.Turn.Stages,
		TenantStages:            cfg.Turn.TenantStages,
		MaxUtteranceLength:      cfg.Turn.MaxUtteranceLength,
		EscalationTarget:        cfg.Turn.EscalationTarget,
		MinClassifierConfidence: cfg.Turn.MinClassifierConfidence,
	}, turn.Deps{
		Sessions:   c.sessions,
		Machine:    machine,
		Compiler:   compiler,
		Matcher:    matcher,
		Policies:   manager,
		Engine:     eng,
		Completion: c.completion,
		Archive:    st,
		Auditor:    auditor,
		Logger:     logger,
		Metrics:    c.collector.Turn(),
	})
	if err != nil {
		return nil, fmt.Errorf("turn pipeline: %w", err)
	}
	c.orchestrator = orch

	// Rule and policy edits invalidate compiled artifacts as soon as
	// the mutation commits, instead of waiting out the cache TTL.
	st.SetHooks(store.Hooks{
		RulesChanged: func(ctx context.Context, tenantID string) {
			if err := compiler.Invalidate(ctx, tenantID); err != nil {
				logger.WarnContext(ctx, "rule set invalidation failed", "tenant_id", tenantID, "error", err)
			}
		},
		PolicyChanged: func(ctx context.Context, tenantID string) {
			if err := manager.Invalidate(ctx, tenantID); err != nil {
				logger.WarnContext(ctx, "policy invalidation failed", "tenant_id", tenantID, "error", err)
			}
		},
	})

	c.health = buildHealth(cfg.Telemetry.Health, c)

	ok = true
	return c, nil
}

func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteWithConfig(store.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func buildCache(cfg config.CacheConfig, collector *metrics.Collector) cache.Cache {
	var inner cache.Cache
	switch cfg.Backend {
	case "redis":
		inner = cache.NewRedis(cfg.Redis)
	default:
		inner = cache.NewMemory(cfg.Memory.MaxEntries, cfg.Memory.CleanupInterval)
	}
	if cm := collector.Cache(); cm != nil {
		return cache.NewInstrumented(inner, cfg.Backend, cm)
	}
	return inner
}

func buildAuditStorage(cfg config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.NewSQLite(&audit.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "memory":
		return audit.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend %q", cfg.Backend)
	}
}

// buildHealth registers readiness checks over the backends the pipeline
// cannot run without. The completion service is deliberately absent: a
// probe per readiness scrape would bill real tokens, the pipeline
// degrades to rules and pools when the service is down, and failing
// readiness over an optional dependency would pull pods that are still
// serving calls. The client's rolling health snapshot covers observability.
func buildHealth(cfg config.HealthConfig, c *components) *health.Checker {
	checker := health.New(cfg.CheckTimeout)

	checker.Register("store", func(ctx context.Context) error {
		_, err := c.store.ResponsePools(ctx, "healthcheck")
		return err
	})
	checker.Register("cache", c.cache.Ping)
	if c.auditStorage != nil {
		// Query with Limit 1 instead of Count: Count walks the whole
		// table on SQLite.
		checker.Register("audit", func(ctx context.Context) error {
			_, err := c.auditStorage.Query(ctx, audit.Query{Limit: 1})
			return err
		})
	}
	return checker
}

// Close releases every component in reverse dependency order. Safe to
// call on a partially built set.
func (c *components) Close() error {
	var errs []error

	// Flush pending audit writes before their storage closes.
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit recorder: %w", err))
		}
	}
	if c.pruner != nil {
		c.pruner.Stop()
	}
	if c.auditStorage != nil {
		if err := c.auditStorage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit storage: %w", err))
		}
	}
	if c.alerts != nil {
		if err := c.alerts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("alert dispatcher: %w", err))
		}
	}
	if c.completion != nil {
		if err := c.completion.Close(); err != nil {
			errs = append(errs, fmt.Errorf("completion client: %w", err))
		}
	}
	if c.sessions != nil {
		if err := c.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("document store: %w", err))
		}
	}
	if c.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
		cancel()
	}

	return errors.Join(errs...)
}
