package audit

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Storage for tests and single-process setups.
// Records are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	records []*Record
}

var _ Storage = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Store implements Storage.
func (m *Memory) Store(ctx context.Context, rec *Record) error {
	cp := *rec
	cp.Trail = slices.Clone(rec.Trail)

	m.mu.Lock()
	m.records = append(m.records, &cp)
	m.mu.Unlock()
	return nil
}

// Query implements Storage.
func (m *Memory) Query(ctx context.Context, q Query) ([]*Record, error) {
	m.mu.RLock()
	var hits []*Record
	for _, rec := range m.records {
		if matchesQuery(rec, q) {
			hits = append(hits, rec)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].RecordedAt.Equal(hits[j].RecordedAt) {
			return hits[i].RecordedAt.After(hits[j].RecordedAt)
		}
		return hits[i].ID < hits[j].ID
	})

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) {
		return nil, nil
	}
	hits = hits[offset:]
	if limit := q.limit(); len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]*Record, len(hits))
	for i, rec := range hits {
		cp := *rec
		cp.Trail = slices.Clone(rec.Trail)
		out[i] = &cp
	}
	return out, nil
}

// Count implements Storage.
func (m *Memory) Count(ctx context.Context, q Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.records {
		if matchesQuery(rec, q) {
			n++
		}
	}
	return n, nil
}

// Delete implements Storage.
func (m *Memory) Delete(ctx context.Context, q Query) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var removed int64
	for _, rec := range m.records {
		if matchesQuery(rec, q) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

// Close implements Storage.
func (m *Memory) Close() error {
	return nil
}

func matchesQuery(rec *Record, q Query) bool {
	if q.TenantID != "" && rec.TenantID != q.TenantID {
		return false
	}
	if q.CallID != "" && rec.CallID != q.CallID {
		return false
	}
	if q.Action != "" && rec.Action != q.Action {
		return false
	}
	if q.TrailContains != "" && !trailContains(rec.Trail, q.TrailContains) {
		return false
	}
	if q.Since != nil && rec.RecordedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && rec.RecordedAt.After(*q.Until) {
		return false
	}
	return true
}

func trailContains(trail []string, marker string) bool {
	for _, entry := range trail {
		if strings.Contains(entry, marker) {
			return true
		}
	}
	return false
}
