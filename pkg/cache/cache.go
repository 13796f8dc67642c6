package cache

import (
	"context"
	"time"
)

// Cache stores serialized compiled artifacts under string keys.
//
// Implementations must be safe for concurrent use. Errors indicate a
// backend problem, never a miss: a miss is (nil, false, nil). Callers
// are expected to fall back to recompilation when an error is returned.
type Cache interface {
	// Get returns the value stored under key. The second return value
	// reports whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL. A zero TTL stores
	// the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the value stored under key. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
