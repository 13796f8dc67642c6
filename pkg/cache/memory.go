package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a thread-safe in-process cache with per-entry TTL and LRU
// eviction. When the cache reaches max capacity it evicts the least
// recently accessed entry. Expired entries are swept by a background
// goroutine.
type Memory struct {
	// entries maps cache keys to stored values
	entries map[string]*memoryEntry

	// maxEntries is the maximum number of entries (0 = unlimited)
	maxEntries int

	// mu protects concurrent access to the cache
	mu sync.RWMutex

	// stopCh signals the cleanup goroutine to stop
	stopCh   chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	value          []byte
	expiresAt      time.Time // zero time = no expiry
	lastAccessedAt time.Time
}

// NewMemory creates a new in-process cache.
// If maxEntries is 0, the cache has unlimited size.
// cleanupInterval controls how often expired entries are swept; it
// defaults to one minute when zero.
func NewMemory(maxEntries int, cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}

	go c.sweep(cleanupInterval)

	return c
}

// Get retrieves a value from the cache.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.RUnlock()
		return nil, false, nil
	}
	value := entry.value
	c.mu.RUnlock()

	// Update access time with write lock; the entry may have been
	// deleted between locks.
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		entry.lastAccessedAt = time.Now()
	}
	c.mu.Unlock()

	return value, true, nil
}

// Set stores a value in the cache. If the cache is full, the least
// recently used entry is evicted first.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	expiresAt := time.Time{}
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.entries[key] = &memoryEntry{
		value:          stored,
		expiresAt:      expiresAt,
		lastAccessedAt: now,
	}

	return nil
}

// Delete removes an entry from the cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Ping always succeeds for the in-process cache.
func (c *Memory) Ping(_ context.Context) error {
	return nil
}

// Size returns the current number of entries in the cache.
func (c *Memory) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the background sweep goroutine.
// After calling Close, the cache should not be used.
func (c *Memory) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

// evictLRU evicts the least recently used entry from the cache.
// Must be called with write lock held.
func (c *Memory) evictLRU() {
	if len(c.entries) == 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// sweep runs periodically to remove expired entries until Close is called.
func (c *Memory) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache.
func (c *Memory) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
