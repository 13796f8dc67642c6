// Package audit persists per-turn decision records.
//
// The Recorder accepts records from the turn pipeline without blocking it:
// records are buffered and flushed to storage by a background worker, and
// dropped (and counted) when the buffer is full. Storage backends cover
// sqlite for durability and an in-memory implementation for tests. The
// Pruner enforces the retention window on a cron schedule.
package audit
