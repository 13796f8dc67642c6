package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/turn"
)

// RecorderConfig controls the async recorder.
type RecorderConfig struct {
	// AsyncBuffer is the channel buffer between the turn pipeline and
	// the storage worker. When it is full, new records are dropped.
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration

	// MaxFieldLength caps stored free-text fields in bytes.
	MaxFieldLength int

	// HashResponses stores a SHA-256 digest of the spoken response
	// instead of the raw text.
	HashResponses bool
}

// DefaultRecorderConfig returns the production defaults.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		AsyncBuffer:    1000,
		WriteTimeout:   5 * time.Second,
		MaxFieldLength: 500,
		HashResponses:  true,
	}
}

// Recorder buffers turn records and writes them to storage from a
// background worker. It implements turn.Auditor: enqueueing never blocks
// the pipeline, and records are dropped (and counted) when the buffer is
// full.
type Recorder struct {
	storage Storage
	cfg     RecorderConfig
	logger  *logging.Logger

	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64

	closeOnce sync.Once
}

var _ turn.Auditor = (*Recorder)(nil)

// NewRecorder starts a recorder writing to storage. A nil cfg uses
// DefaultRecorderConfig. The recorder does not own the storage; the
// caller closes it after Close returns.
func NewRecorder(storage Storage, cfg *RecorderConfig, logger *logging.Logger) (*Recorder, error) {
	if storage == nil {
		return nil, errors.New("audit: storage is required")
	}
	if logger == nil {
		return nil, errors.New("audit: logger is required")
	}
	if cfg == nil {
		cfg = DefaultRecorderConfig()
	}

	norm := *cfg
	def := DefaultRecorderConfig()
	if norm.AsyncBuffer <= 0 {
		norm.AsyncBuffer = def.AsyncBuffer
	}
	if norm.WriteTimeout <= 0 {
		norm.WriteTimeout = def.WriteTimeout
	}
	if norm.MaxFieldLength <= 0 {
		norm.MaxFieldLength = def.MaxFieldLength
	}

	r := &Recorder{
		storage: storage,
		cfg:     norm,
		logger:  logger,
		records: make(chan *Record, norm.AsyncBuffer),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r, nil
}

// RecordTurn implements turn.Auditor. It returns immediately; when the
// buffer is full the record is dropped and the drop counted.
func (r *Recorder) RecordTurn(ctx context.Context, rec turn.AuditRecord) {
	record := r.newRecord(rec)

	select {
	case <-r.done:
		return
	default:
	}

	select {
	case r.records <- record:
	default:
		dropped := r.dropped.Add(1)
		r.logger.WarnContext(ctx, "audit buffer full, record dropped",
			"call_id", rec.CallID,
			"turn", rec.TurnNumber,
			"dropped_total", dropped,
		)
	}
}

// Dropped returns how many records were discarded because the buffer was
// full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops the worker after draining buffered records. It does not
// close the storage.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
	return nil
}

func (r *Recorder) newRecord(rec turn.AuditRecord) *Record {
	out := &Record{
		ID:             uuid.NewString(),
		CallID:         rec.CallID,
		TenantID:       rec.TenantID,
		TurnNumber:     rec.TurnNumber,
		Input:          truncate(rec.Input, r.cfg.MaxFieldLength),
		Category:       rec.Category,
		Action:         rec.Action,
		TransferTarget: rec.TransferTarget,
		ShortCircuited: rec.ShortCircuited,
		Trail:          slices.Clone(rec.Trail),
		Duration:       rec.Duration,
		RecordedAt:     time.Now().UTC(),
	}
	if r.cfg.HashResponses {
		out.ResponseHash = hashText(rec.ResponseText)
	} else {
		out.ResponseText = truncate(rec.ResponseText, r.cfg.MaxFieldLength)
	}
	return out
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.done:
			// Drain whatever was enqueued before shutdown.
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("audit write failed",
			"call_id", rec.CallID,
			"turn", rec.TurnNumber,
			"error", err,
		)
	}
}

// hashText returns the hex-encoded SHA-256 digest of s, or "" when s is
// empty.
func hashText(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// truncate caps s at max bytes without splitting a UTF-8 sequence,
// marking the cut with an ellipsis when there is room for one.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	if max > 3 {
		cut = max - 3
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if max > 3 {
		return s[:cut] + "..."
	}
	return s[:cut]
}
