package audit

import (
	"context"
	"time"
)

const (
	// DefaultQueryLimit applies when a query does not set Limit.
	DefaultQueryLimit = 100

	// MaxQueryLimit is the hard cap on a single query's result size.
	MaxQueryLimit = 1000
)

// Record is one stored turn decision.
type Record struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// CallID and TurnNumber locate the turn within a call.
	CallID     string `json:"call_id"`
	TurnNumber int    `json:"turn_number"`

	// TenantID identifies the tenant the call belongs to.
	TenantID string `json:"tenant_id"`

	// Input is the cleaned caller utterance, truncated to the recorder's
	// field limit.
	Input string `json:"input,omitempty"`

	// Category is the triage classification, empty when the turn never
	// reached classification.
	Category string `json:"category,omitempty"`

	// Action is the final disposition of the turn.
	Action string `json:"action"`

	// ResponseText is the spoken response. Empty when the recorder is
	// configured to hash responses instead.
	ResponseText string `json:"response_text,omitempty"`

	// ResponseHash is the SHA-256 digest of the spoken response when
	// response hashing is enabled.
	ResponseHash string `json:"response_hash,omitempty"`

	// TransferTarget is set for transfer actions.
	TransferTarget string `json:"transfer_target,omitempty"`

	// ShortCircuited reports that a stage ended the turn early.
	ShortCircuited bool `json:"short_circuited"`

	// Trail lists the decisions made during the turn in order: stage
	// outcomes, fired guardrails, denied transfers, failure markers.
	Trail []string `json:"trail,omitempty"`

	// Duration is the wall time the turn took, stored at millisecond
	// precision.
	Duration time.Duration `json:"duration"`

	// RecordedAt is when the recorder accepted the record.
	RecordedAt time.Time `json:"recorded_at"`
}

// Query selects records. Zero-value fields are not filtered on.
type Query struct {
	// TenantID restricts results to one tenant.
	TenantID string

	// CallID restricts results to one call.
	CallID string

	// Action restricts results to one final disposition.
	Action string

	// TrailContains matches records whose trail mentions the given
	// marker, e.g. "guardrail:" or "transfer_denied".
	TrailContains string

	// Since and Until bound RecordedAt inclusively.
	Since *time.Time
	Until *time.Time

	// Limit caps the result size; zero means DefaultQueryLimit. Offset
	// skips that many newest records first.
	Limit  int
	Offset int
}

// limit returns the effective result cap for the query.
func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return q.Limit
	}
}

// Storage persists turn records.
type Storage interface {
	// Store persists one record.
	Store(ctx context.Context, rec *Record) error

	// Query returns records matching q, newest first.
	Query(ctx context.Context, q Query) ([]*Record, error)

	// Count returns how many records match q, ignoring Limit and Offset.
	Count(ctx context.Context, q Query) (int64, error)

	// Delete removes records matching q, ignoring Limit and Offset, and
	// returns how many were removed.
	Delete(ctx context.Context, q Query) (int64, error)

	// Close releases the backend.
	Close() error
}
