package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"halcyon-hq/switchboard/pkg/cache"
)

// Store persists session state between turns. Implementations synchronize
// access across calls; within one call, turns are sequential and never
// race on the same state.
type Store interface {
	// Load returns the call's state, reporting false when the call has
	// none yet.
	Load(ctx context.Context, callID string) (*State, bool, error)

	// Save persists the state under its call ID and stamps UpdatedAt.
	Save(ctx context.Context, st *State) error

	// Delete discards the call's state, normally at hangup.
	Delete(ctx context.Context, callID string) error

	// Close releases store resources.
	Close() error
}

type memoryEntry struct {
	state     *State
	expiresAt time.Time
}

// MemoryStore keeps session state in process memory. Entries expire after
// a TTL as a backstop for calls whose hangup never reached Delete.
type MemoryStore struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*memoryEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates an in-process session store. A ttl of zero
// defaults to 30 minutes; a cleanupInterval of zero defaults to one
// minute. Callers must Close the store to stop the sweeper.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.sweep(cleanupInterval)
	return s
}

// Load implements Store. The returned state is a copy; mutations are not
// visible until saved.
func (s *MemoryStore) Load(_ context.Context, callID string) (*State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[callID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.state.Clone(), true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, st *State) error {
	if st == nil || st.CallID == "" {
		return errors.New("session: state has no call id")
	}
	st.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[st.CallID] = &memoryEntry{
		state:     st.Clone(),
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, callID)
	return nil
}

// Close stops the expiry sweeper. The store stays usable but no longer
// reclaims leaked entries.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Len returns the number of live entries, for tests and health reporting.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// CacheStore keeps session state in the shared byte cache, letting any
// node serve the next turn of a call. Errors from the cache surface to the
// caller, which treats them as a fresh session rather than failing the
// turn.
type CacheStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewCacheStore creates a session store backed by the shared cache. A ttl
// of zero defaults to 30 minutes.
func NewCacheStore(c cache.Cache, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CacheStore{cache: c, ttl: ttl}
}

// Load implements Store.
func (s *CacheStore) Load(ctx context.Context, callID string) (*State, bool, error) {
	data, ok, err := s.cache.Get(ctx, cache.SessionKey(callID))
	if err != nil {
		return nil, false, fmt.Errorf("load session %q: %w", callID, err)
	}
	if !ok {
		return nil, false, nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("decode session %q: %w", callID, err)
	}
	return &st, true, nil
}

// Save implements Store.
func (s *CacheStore) Save(ctx context.Context, st *State) error {
	if st == nil || st.CallID == "" {
		return errors.New("session: state has no call id")
	}
	st.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", st.CallID, err)
	}
	if err := s.cache.Set(ctx, cache.SessionKey(st.CallID), data, s.ttl); err != nil {
		return fmt.Errorf("save session %q: %w", st.CallID, err)
	}
	return nil
}

// Delete implements Store.
func (s *CacheStore) Delete(ctx context.Context, callID string) error {
	if err := s.cache.Delete(ctx, cache.SessionKey(callID)); err != nil {
		return fmt.Errorf("delete session %q: %w", callID, err)
	}
	return nil
}

// Close implements Store. The underlying cache is shared and owned by the
// caller, so there is nothing to release here.
func (s *CacheStore) Close() error {
	return nil
}
