package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/triage"
)

// SQLite implements Store using SQLite for persistent storage. Documents
// survive process restarts, which keeps tenants serviceable through deploys
// without re-importing rules.
//
// The database runs in WAL mode with a single write connection. Document
// writes are operator-paced (rule edits, policy pushes), so write throughput
// is never the bottleneck; the single-writer pool trades it away for
// simplicity and zero SQLITE_BUSY handling.
type SQLite struct {
	notifier

	db *sql.DB
	mu sync.RWMutex

	// Prepared statements for the steady-state paths.
	upsertManualStmt       *sql.Stmt
	deleteManualStmt       *sql.Stmt
	listManualStmt         *sql.Stmt
	upsertGeneratedStmt    *sql.Stmt
	setGeneratedActiveStmt *sql.Stmt
	listGeneratedStmt      *sql.Stmt
	upsertPoolStmt         *sql.Stmt
	deletePoolStmt         *sql.Stmt
	listPoolsStmt          *sql.Stmt
	activePolicyStmt       *sql.Stmt
	listVersionsStmt       *sql.Stmt
	upsertSessionStmt      *sql.Stmt
	listSessionsStmt       *sql.Stmt

	// checkpointTicker triggers periodic WAL checkpoints to bound the
	// WAL file size.
	checkpointTicker *time.Ticker
	checkpointDone   chan struct{}
	closeOnce        sync.Once
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file location. Required.
	Path string

	// BusyTimeout is how long SQLite waits for a locked database.
	// Default: 5 seconds.
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes.
	CheckpointInterval time.Duration
}

// defaultSessionHistoryLimit caps SessionHistory when the caller passes 0.
const defaultSessionHistoryLimit = 50

var _ Store = (*SQLite)(nil)

// NewSQLite creates a SQLite-backed store at the given path with default
// settings.
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteWithConfig creates a SQLite-backed store with custom
// configuration.
func NewSQLiteWithConfig(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: SQLite allows one writer at a time, and funneling
	// every statement through one connection avoids SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{
		db:             db,
		checkpointDone: make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	s.checkpointTicker = time.NewTicker(cfg.CheckpointInterval)
	go s.checkpointLoop()

	return s, nil
}

// initSchema creates the document tables if they do not exist.
func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS manual_rules (
		tenant_id         TEXT NOT NULL,
		id                TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		required_keywords TEXT NOT NULL,
		excluded_keywords TEXT NOT NULL DEFAULT '[]',
		classification    TEXT NOT NULL,
		action            TEXT NOT NULL,
		priority          INTEGER NOT NULL DEFAULT 0,
		rationale         TEXT NOT NULL DEFAULT '',
		updated_at        INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS generated_rules (
		tenant_id         TEXT NOT NULL,
		id                TEXT NOT NULL,
		required_keywords TEXT NOT NULL,
		excluded_keywords TEXT NOT NULL DEFAULT '[]',
		classification    TEXT NOT NULL,
		action            TEXT NOT NULL,
		priority          INTEGER NOT NULL DEFAULT 0,
		confidence        REAL NOT NULL DEFAULT 0,
		active            INTEGER NOT NULL DEFAULT 0,
		rationale         TEXT NOT NULL DEFAULT '',
		updated_at        INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS response_pools (
		tenant_id      TEXT NOT NULL,
		classification TEXT NOT NULL,
		responses      TEXT NOT NULL,
		updated_at     INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, classification)
	);

	CREATE TABLE IF NOT EXISTS policies (
		tenant_id  TEXT NOT NULL,
		version    INTEGER NOT NULL,
		active     INTEGER NOT NULL DEFAULT 0,
		document   TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_policies_active
		ON policies(tenant_id, active);

	CREATE TABLE IF NOT EXISTS sessions (
		call_id   TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		record    TEXT NOT NULL,
		ended_at  INTEGER NOT NULL,
		PRIMARY KEY (call_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_tenant
		ON sessions(tenant_id, ended_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares the statements the serving paths reuse.
func (s *SQLite) prepareStatements() error {
	var err error

	s.upsertManualStmt, err = s.db.Prepare(`
		INSERT INTO manual_rules (tenant_id, id, name, required_keywords,
			excluded_keywords, classification, action, priority,
			rationale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = excluded.name,
			required_keywords = excluded.required_keywords,
			excluded_keywords = excluded.excluded_keywords,
			classification = excluded.classification,
			action = excluded.action,
			priority = excluded.priority,
			rationale = excluded.rationale,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert manual rule: %w", err)
	}

	s.deleteManualStmt, err = s.db.Prepare(`
		DELETE FROM manual_rules WHERE tenant_id = ? AND id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare delete manual rule: %w", err)
	}

	s.listManualStmt, err = s.db.Prepare(`
		SELECT id, name, required_keywords, excluded_keywords,
			classification, action, priority, rationale, updated_at
		FROM manual_rules
		WHERE tenant_id = ?
		ORDER BY id ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare list manual rules: %w", err)
	}

	s.upsertGeneratedStmt, err = s.db.Prepare(`
		INSERT INTO generated_rules (tenant_id, id, required_keywords,
			excluded_keywords, classification, action, priority,
			confidence, active, rationale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			required_keywords = excluded.required_keywords,
			excluded_keywords = excluded.excluded_keywords,
			classification = excluded.classification,
			action = excluded.action,
			priority = excluded.priority,
			confidence = excluded.confidence,
			active = excluded.active,
			rationale = excluded.rationale,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert generated rule: %w", err)
	}

	s.setGeneratedActiveStmt, err = s.db.Prepare(`
		UPDATE generated_rules SET active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare set generated rule active: %w", err)
	}

	s.listGeneratedStmt, err = s.db.Prepare(`
		SELECT id, required_keywords, excluded_keywords, classification,
			action, priority, confidence, active, rationale, updated_at
		FROM generated_rules
		WHERE tenant_id = ?
		ORDER BY id ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare list generated rules: %w", err)
	}

	s.upsertPoolStmt, err = s.db.Prepare(`
		INSERT INTO response_pools (tenant_id, classification, responses, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, classification) DO UPDATE SET
			responses = excluded.responses,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert response pool: %w", err)
	}

	s.deletePoolStmt, err = s.db.Prepare(`
		DELETE FROM response_pools WHERE tenant_id = ? AND classification = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare delete response pool: %w", err)
	}

	s.listPoolsStmt, err = s.db.Prepare(`
		SELECT classification, responses
		FROM response_pools
		WHERE tenant_id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare list response pools: %w", err)
	}

	s.activePolicyStmt, err = s.db.Prepare(`
		SELECT version, document, updated_at
		FROM policies
		WHERE tenant_id = ? AND active = 1
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("prepare active policy: %w", err)
	}

	s.listVersionsStmt, err = s.db.Prepare(`
		SELECT version, active, updated_at
		FROM policies
		WHERE tenant_id = ?
		ORDER BY version DESC
	`)
	if err != nil {
		return fmt.Errorf("prepare list policy versions: %w", err)
	}

	s.upsertSessionStmt, err = s.db.Prepare(`
		INSERT INTO sessions (call_id, tenant_id, record, ended_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (call_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			record = excluded.record,
			ended_at = excluded.ended_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert session: %w", err)
	}

	s.listSessionsStmt, err = s.db.Prepare(`
		SELECT record
		FROM sessions
		WHERE tenant_id = ?
		ORDER BY ended_at DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("prepare list sessions: %w", err)
	}

	return nil
}

// ManualRules returns the tenant's operator-authored rules.
func (s *SQLite) ManualRules(ctx context.Context, tenantID string) ([]triage.ManualRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listManualStmt.QueryContext(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query manual rules: %w", err)
	}
	defer rows.Close()

	var rules []triage.ManualRule
	for rows.Next() {
		var (
			r                  triage.ManualRule
			required, excluded string
			updatedAt          int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &required, &excluded,
			&r.Classification, &r.Action, &r.Priority, &r.Rationale,
			&updatedAt); err != nil {
			return nil, fmt.Errorf("scan manual rule: %w", err)
		}
		if r.RequiredKeywords, err = unmarshalStrings(required); err != nil {
			return nil, fmt.Errorf("decode required keywords for rule %q: %w", r.ID, err)
		}
		if r.ExcludedKeywords, err = unmarshalStrings(excluded); err != nil {
			return nil, fmt.Errorf("decode excluded keywords for rule %q: %w", r.ID, err)
		}
		r.UpdatedAt = time.Unix(0, updatedAt).UTC()
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GeneratedRules returns the tenant's transcript-mined rules, including
// inactive ones.
func (s *SQLite) GeneratedRules(ctx context.Context, tenantID string) ([]triage.GeneratedRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listGeneratedStmt.QueryContext(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query generated rules: %w", err)
	}
	defer rows.Close()

	var rules []triage.GeneratedRule
	for rows.Next() {
		var (
			r                  triage.GeneratedRule
			required, excluded string
			active             int
			updatedAt          int64
		)
		if err := rows.Scan(&r.ID, &required, &excluded, &r.Classification,
			&r.Action, &r.Priority, &r.Confidence, &active, &r.Rationale,
			&updatedAt); err != nil {
			return nil, fmt.Errorf("scan generated rule: %w", err)
		}
		if r.RequiredKeywords, err = unmarshalStrings(required); err != nil {
			return nil, fmt.Errorf("decode required keywords for rule %q: %w", r.ID, err)
		}
		if r.ExcludedKeywords, err = unmarshalStrings(excluded); err != nil {
			return nil, fmt.Errorf("decode excluded keywords for rule %q: %w", r.ID, err)
		}
		r.Active = active != 0
		r.UpdatedAt = time.Unix(0, updatedAt).UTC()
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ResponsePools returns the tenant's canned response pools keyed by
// classification.
func (s *SQLite) ResponsePools(ctx context.Context, tenantID string) (map[string][]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listPoolsStmt.QueryContext(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query response pools: %w", err)
	}
	defer rows.Close()

	pools := make(map[string][]string)
	for rows.Next() {
		var classification, responses string
		if err := rows.Scan(&classification, &responses); err != nil {
			return nil, fmt.Errorf("scan response pool: %w", err)
		}
		texts, err := unmarshalStrings(responses)
		if err != nil {
			return nil, fmt.Errorf("decode responses for pool %q: %w", classification, err)
		}
		pools[classification] = texts
	}
	return pools, rows.Err()
}

// SaveManualRule inserts or replaces an operator-authored rule.
func (s *SQLite) SaveManualRule(ctx context.Context, tenantID string, rule *triage.ManualRule) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now().UTC()
	}

	required, err := marshalStrings(rule.RequiredKeywords)
	if err != nil {
		return fmt.Errorf("encode required keywords: %w", err)
	}
	excluded, err := marshalStrings(rule.ExcludedKeywords)
	if err != nil {
		return fmt.Errorf("encode excluded keywords: %w", err)
	}

	s.mu.Lock()
	_, err = s.upsertManualStmt.ExecContext(ctx, tenantID, rule.ID, rule.Name,
		required, excluded, rule.Classification, rule.Action, rule.Priority,
		rule.Rationale, rule.UpdatedAt.UnixNano())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save manual rule %q: %w", rule.ID, err)
	}

	s.rulesChanged(ctx, tenantID)
	return nil
}

// DeleteManualRule removes an operator-authored rule.
func (s *SQLite) DeleteManualRule(ctx context.Context, tenantID, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if ruleID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}

	s.mu.Lock()
	res, err := s.deleteManualStmt.ExecContext(ctx, tenantID, ruleID)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete manual rule %q: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete manual rule %q: %w", ruleID, err)
	}
	if n == 0 {
		return fmt.Errorf("manual rule %q for tenant %q: %w", ruleID, tenantID, ErrNotFound)
	}

	s.rulesChanged(ctx, tenantID)
	return nil
}

// SaveGeneratedRule inserts or replaces a transcript-mined rule.
func (s *SQLite) SaveGeneratedRule(ctx context.Context, tenantID string, rule *triage.GeneratedRule) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now().UTC()
	}

	required, err := marshalStrings(rule.RequiredKeywords)
	if err != nil {
		return fmt.Errorf("encode required keywords: %w", err)
	}
	excluded, err := marshalStrings(rule.ExcludedKeywords)
	if err != nil {
		return fmt.Errorf("encode excluded keywords: %w", err)
	}

	active := 0
	if rule.Active {
		active = 1
	}

	s.mu.Lock()
	_, err = s.upsertGeneratedStmt.ExecContext(ctx, tenantID, rule.ID,
		required, excluded, rule.Classification, rule.Action, rule.Priority,
		rule.Confidence, active, rule.Rationale, rule.UpdatedAt.UnixNano())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save generated rule %q: %w", rule.ID, err)
	}

	s.rulesChanged(ctx, tenantID)
	return nil
}

// SetGeneratedRuleActive flips a mined rule in or out of compilation.
func (s *SQLite) SetGeneratedRuleActive(ctx context.Context, tenantID, ruleID string, active bool) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if ruleID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}

	flag := 0
	if active {
		flag = 1
	}

	s.mu.Lock()
	res, err := s.setGeneratedActiveStmt.ExecContext(ctx, flag,
		time.Now().UTC().UnixNano(), tenantID, ruleID)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("set generated rule %q active: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set generated rule %q active: %w", ruleID, err)
	}
	if n == 0 {
		return fmt.Errorf("generated rule %q for tenant %q: %w", ruleID, tenantID, ErrNotFound)
	}

	s.rulesChanged(ctx, tenantID)
	return nil
}

// SaveResponsePool replaces the canned responses for a classification.
func (s *SQLite) SaveResponsePool(ctx context.Context, tenantID, classification string, responses []string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if classification == "" {
		return fmt.Errorf("classification cannot be empty")
	}

	encoded, err := marshalStrings(responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}

	s.mu.Lock()
	_, err = s.upsertPoolStmt.ExecContext(ctx, tenantID, classification,
		encoded, time.Now().UTC().UnixNano())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save response pool %q: %w", classification, err)
	}

	s.rulesChanged(ctx, tenantID)
	return nil
}

// DeleteResponsePool removes a classification's canned responses.
func (s *SQLite) DeleteResponsePool(ctx context.Context, tenantID, classification string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if classification == "" {
		return fmt.Errorf("classification cannot be empty")
	}

	s.mu.Lock()
	res, err := s.deletePoolStmt.ExecContext(ctx, tenantID, classification)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete response pool %q: %w", classification, err)
	}

	// Deleting an absent pool is a no-op, and compiled sets only change
	// when a row actually went away.
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.rulesChanged(ctx, tenantID)
	}
	return nil
}

// ActivePolicy returns the tenant's active policy document.
func (s *SQLite) ActivePolicy(ctx context.Context, tenantID string) (*policy.Document, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		version   int
		body      string
		updatedAt int64
	)
	err := s.activePolicyStmt.QueryRowContext(ctx, tenantID).
		Scan(&version, &body, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, policy.ErrNoActivePolicy
	}
	if err != nil {
		return nil, fmt.Errorf("query active policy: %w", err)
	}

	var doc policy.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode policy document version %d: %w", version, err)
	}

	// Version, Active, and UpdatedAt live in columns; the JSON body is
	// whatever was current at save time.
	doc.TenantID = tenantID
	doc.Version = version
	doc.Active = true
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &doc, nil
}

// SavePolicy stores the document as a new inactive version and returns the
// assigned version number.
func (s *SQLite) SavePolicy(ctx context.Context, doc *policy.Document) (int, error) {
	if doc == nil {
		return 0, fmt.Errorf("document cannot be nil")
	}
	if doc.TenantID == "" {
		return 0, fmt.Errorf("tenant id cannot be empty")
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save policy: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM policies WHERE tenant_id = ?`,
		doc.TenantID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("assign policy version: %w", err)
	}

	doc.Version = version
	doc.Active = false

	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode policy document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO policies (tenant_id, version, active, document, updated_at)
		 VALUES (?, ?, 0, ?, ?)`,
		doc.TenantID, version, string(body), doc.UpdatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert policy version %d: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save policy: %w", err)
	}
	return version, nil
}

// ActivatePolicy makes the given version the tenant's single active version.
func (s *SQLite) ActivatePolicy(ctx context.Context, tenantID string, version int) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if version <= 0 {
		return fmt.Errorf("version must be positive")
	}

	s.mu.Lock()
	err := s.activatePolicyLocked(ctx, tenantID, version)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.policyChanged(ctx, tenantID)
	return nil
}

func (s *SQLite) activatePolicyLocked(ctx context.Context, tenantID string, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate policy: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixNano()

	res, err := tx.ExecContext(ctx,
		`UPDATE policies SET active = 1, updated_at = ?
		 WHERE tenant_id = ? AND version = ?`,
		now, tenantID, version)
	if err != nil {
		return fmt.Errorf("activate policy version %d: %w", version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate policy version %d: %w", version, err)
	}
	if n == 0 {
		return fmt.Errorf("policy version %d for tenant %q: %w", version, tenantID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE policies SET active = 0
		 WHERE tenant_id = ? AND version != ? AND active = 1`,
		tenantID, version)
	if err != nil {
		return fmt.Errorf("deactivate previous policy versions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate policy: %w", err)
	}
	return nil
}

// PolicyVersions lists the tenant's stored versions, newest first.
func (s *SQLite) PolicyVersions(ctx context.Context, tenantID string) ([]PolicyVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listVersionsStmt.QueryContext(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query policy versions: %w", err)
	}
	defer rows.Close()

	var versions []PolicyVersion
	for rows.Next() {
		var (
			v         PolicyVersion
			active    int
			updatedAt int64
		)
		if err := rows.Scan(&v.Version, &active, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan policy version: %w", err)
		}
		v.Active = active != 0
		v.UpdatedAt = time.Unix(0, updatedAt).UTC()
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ArchiveSession appends a finished call's record.
func (s *SQLite) ArchiveSession(ctx context.Context, rec *SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.CallID == "" {
		return fmt.Errorf("call id cannot be empty")
	}
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	s.mu.Lock()
	_, err = s.upsertSessionStmt.ExecContext(ctx, rec.CallID, rec.TenantID,
		string(body), rec.EndedAt.UnixNano())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("archive session %q: %w", rec.CallID, err)
	}
	return nil
}

// SessionHistory returns a tenant's archived calls, newest first.
func (s *SQLite) SessionHistory(ctx context.Context, tenantID string, limit int) ([]SessionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}
	if limit <= 0 {
		limit = defaultSessionHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listSessionsStmt.QueryContext(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session record: %w", err)
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode session record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// checkpointLoop periodically checkpoints the WAL file so it cannot grow
// unbounded between restarts.
func (s *SQLite) checkpointLoop() {
	for {
		select {
		case <-s.checkpointTicker.C:
			s.mu.Lock()
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
			s.mu.Unlock()
		case <-s.checkpointDone:
			return
		}
	}
}

// Close releases database resources. Safe to call more than once.
func (s *SQLite) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.checkpointTicker.Stop()
		close(s.checkpointDone)

		s.mu.Lock()
		defer s.mu.Unlock()

		for _, stmt := range []*sql.Stmt{
			s.upsertManualStmt, s.deleteManualStmt, s.listManualStmt,
			s.upsertGeneratedStmt, s.setGeneratedActiveStmt, s.listGeneratedStmt,
			s.upsertPoolStmt, s.deletePoolStmt, s.listPoolsStmt,
			s.activePolicyStmt, s.listVersionsStmt,
			s.upsertSessionStmt, s.listSessionsStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		// Fold the WAL back into the main database file on shutdown.
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

		closeErr = s.db.Close()
	})
	return closeErr
}

// marshalStrings encodes a string slice as a JSON array. Nil encodes as the
// empty array so columns stay NOT NULL.
func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalStrings decodes a JSON array column.
func unmarshalStrings(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}
