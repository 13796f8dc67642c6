package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// Registers the "sqlite3" driver. The audit trail keeps its own
	// database file, separate from the rule and policy store.
	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id              TEXT PRIMARY KEY,
	call_id         TEXT NOT NULL,
	tenant_id       TEXT NOT NULL,
	turn_number     INTEGER NOT NULL,
	input           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	response_text   TEXT NOT NULL DEFAULT '',
	response_hash   TEXT NOT NULL DEFAULT '',
	transfer_target TEXT NOT NULL DEFAULT '',
	short_circuited INTEGER NOT NULL DEFAULT 0,
	trail           TEXT NOT NULL DEFAULT '[]',
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	recorded_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_call ON audit_records(call_id, turn_number);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_time ON audit_records(tenant_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_records(recorded_at);

CREATE TABLE IF NOT EXISTS audit_schema (
	version INTEGER NOT NULL
);
`

// SQLiteConfig controls the sqlite audit backend.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// MaxOpenConns and MaxIdleConns size the connection pool.
	MaxOpenConns int
	MaxIdleConns int

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is how long a statement waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the production defaults.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLite stores turn records in a sqlite database file.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the audit database. A nil cfg uses
// DefaultSQLiteConfig.
func NewSQLite(cfg *SQLiteConfig) (*SQLite, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}
	if cfg.Path == "" {
		return nil, errors.New("audit: sqlite path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	def := DefaultSQLiteConfig()
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = def.MaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = def.MaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if cfg.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = def.BusyTimeout
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busy.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO audit_schema (version) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM audit_schema);",
		schemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT version FROM audit_schema;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("audit schema version is %d, this build expects %d", version, schemaVersion)
	}
	return nil
}

// Store implements Storage.
func (s *SQLite) Store(ctx context.Context, rec *Record) error {
	trail := rec.Trail
	if trail == nil {
		trail = []string{}
	}
	encoded, _ := json.Marshal(trail)

	const query = `
		INSERT INTO audit_records (
			id, call_id, tenant_id, turn_number,
			input, category, action,
			response_text, response_hash, transfer_target,
			short_circuited, trail, duration_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.CallID, rec.TenantID, rec.TurnNumber,
		rec.Input, rec.Category, rec.Action,
		rec.ResponseText, rec.ResponseHash, rec.TransferTarget,
		rec.ShortCircuited, string(encoded), rec.Duration.Milliseconds(), rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store audit record: %w", err)
	}
	return nil
}

// Query implements Storage.
func (s *SQLite) Query(ctx context.Context, q Query) ([]*Record, error) {
	where, args := buildAuditWhere(q)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
		SELECT id, call_id, tenant_id, turn_number,
		       input, category, action,
		       response_text, response_hash, transfer_target,
		       short_circuited, trail, duration_ms, recorded_at
		FROM audit_records
		%s
		ORDER BY recorded_at DESC, id ASC
		LIMIT %d OFFSET %d
	`, where, q.limit(), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count implements Storage.
func (s *SQLite) Count(ctx context.Context, q Query) (int64, error) {
	where, args := buildAuditWhere(q)
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// Delete implements Storage.
func (s *SQLite) Delete(ctx context.Context, q Query) (int64, error) {
	where, args := buildAuditWhere(q)
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_records "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	return removed, nil
}

// Close implements Storage.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close audit database: %w", err)
	}
	return nil
}

func buildAuditWhere(q Query) (string, []any) {
	var conds []string
	var args []any

	if q.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, q.TenantID)
	}
	if q.CallID != "" {
		conds = append(conds, "call_id = ?")
		args = append(args, q.CallID)
	}
	if q.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, q.Action)
	}
	if q.TrailContains != "" {
		conds = append(conds, "trail LIKE ?")
		args = append(args, "%"+q.TrailContains+"%")
	}
	if q.Since != nil {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, q.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec        Record
		trail      string
		durationMS int64
		recordedAt int64
	)
	if err := rows.Scan(
		&rec.ID, &rec.CallID, &rec.TenantID, &rec.TurnNumber,
		&rec.Input, &rec.Category, &rec.Action,
		&rec.ResponseText, &rec.ResponseHash, &rec.TransferTarget,
		&rec.ShortCircuited, &trail, &durationMS, &recordedAt,
	); err != nil {
		return nil, fmt.Errorf("scan audit record: %w", err)
	}

	if err := json.Unmarshal([]byte(trail), &rec.Trail); err != nil {
		return nil, fmt.Errorf("decode audit trail: %w", err)
	}
	if len(rec.Trail) == 0 {
		rec.Trail = nil
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.RecordedAt = time.Unix(0, recordedAt).UTC()
	return &rec, nil
}
