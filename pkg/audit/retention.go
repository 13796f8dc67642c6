package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"halcyon-hq/switchboard/pkg/telemetry/logging"
)

// pruneTimeout bounds one scheduled prune run.
const pruneTimeout = 5 * time.Minute

// RetentionConfig controls how long audit records are kept.
type RetentionConfig struct {
	// Days is the retention window. Records older than this are removed.
	// Zero disables age-based pruning.
	Days int

	// Schedule is a standard five-field cron expression for when pruning
	// runs.
	Schedule string

	// MaxRecords caps the total record count; the oldest records beyond
	// it are removed. Zero disables the cap.
	MaxRecords int64
}

// DefaultRetentionConfig returns the production defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Days:     90,
		Schedule: "0 3 * * *",
	}
}

// Pruner removes audit records that fall outside the retention window,
// either on demand or on a cron schedule.
type Pruner struct {
	storage Storage
	cfg     RetentionConfig
	logger  *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPruner builds a pruner over storage. A nil cfg uses
// DefaultRetentionConfig.
func NewPruner(storage Storage, cfg *RetentionConfig, logger *logging.Logger) (*Pruner, error) {
	if storage == nil {
		return nil, errors.New("audit: storage is required")
	}
	if logger == nil {
		return nil, errors.New("audit: logger is required")
	}
	if cfg == nil {
		cfg = DefaultRetentionConfig()
	}
	if cfg.Days < 0 {
		return nil, fmt.Errorf("audit: retention days must not be negative, got %d", cfg.Days)
	}
	if cfg.MaxRecords < 0 {
		return nil, fmt.Errorf("audit: retention max records must not be negative, got %d", cfg.MaxRecords)
	}

	norm := *cfg
	if norm.Schedule == "" {
		norm.Schedule = DefaultRetentionConfig().Schedule
	}

	return &Pruner{
		storage: storage,
		cfg:     norm,
		logger:  logger,
	}, nil
}

// Prune removes expired records and returns how many were removed. Age
// pruning runs first, then the record-count cap.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.cfg.Days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -p.cfg.Days)
		removed, err := p.storage.Delete(ctx, Query{Until: &cutoff})
		if err != nil {
			return total, fmt.Errorf("prune by age: %w", err)
		}
		total += removed
	}

	if p.cfg.MaxRecords > 0 {
		removed, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count: %w", err)
		}
		total += removed
	}

	return total, nil
}

// pruneByCount deletes everything at or before the timestamp of the first
// record past the cap, so ties at the boundary go with it.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, Query{})
	if err != nil {
		return 0, err
	}
	if count <= p.cfg.MaxRecords {
		return 0, nil
	}

	boundary, err := p.storage.Query(ctx, Query{Limit: 1, Offset: int(p.cfg.MaxRecords)})
	if err != nil {
		return 0, err
	}
	if len(boundary) == 0 {
		return 0, nil
	}

	cutoff := boundary[0].RecordedAt
	return p.storage.Delete(ctx, Query{Until: &cutoff})
}

// Start schedules pruning. It validates the cron expression, begins the
// schedule, and stops it when ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("audit: pruner already running")
	}
	if _, err := cron.ParseStandard(p.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.cfg.Schedule, err)
	}

	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.cfg.Schedule, p.runScheduled); err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	p.cron.Start()
	p.running = true

	p.logger.Info("audit retention scheduled",
		"schedule", p.cfg.Schedule,
		"retention_days", p.cfg.Days,
		"max_records", p.cfg.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for an in-flight prune to finish.
// Stopping an idle pruner is a no-op.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
}

// NextRun reports when the next scheduled prune fires, or nil when the
// pruner is not running.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.cron == nil {
		return nil
	}
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

func (p *Pruner) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	removed, err := p.Prune(ctx)
	if err != nil {
		p.logger.Error("scheduled audit prune failed", "error", err)
		return
	}
	if removed > 0 {
		p.logger.Info("audit records pruned", "removed", removed)
	}
}
