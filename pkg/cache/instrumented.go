package cache

import (
	"context"
	"time"

	"halcyon-hq/switchboard/pkg/telemetry/metrics"
)

// sizer is implemented by backends that can report their entry count.
type sizer interface {
	Size() int
}

// Instrumented wraps a Cache and records hits, misses, errors, and entry
// counts against the given recorder. With a nil recorder it delegates
// untouched, so wrapping is always safe.
type Instrumented struct {
	inner   Cache
	backend string
	metrics *metrics.CacheMetrics
}

var _ Cache = (*Instrumented)(nil)

// NewInstrumented wraps inner, labeling metrics with the backend name
// ("memory", "redis").
func NewInstrumented(inner Cache, backend string, cm *metrics.CacheMetrics) *Instrumented {
	return &Instrumented{inner: inner, backend: backend, metrics: cm}
}

// Get delegates to the wrapped cache and records the lookup outcome.
func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := c.inner.Get(ctx, key)
	if c.metrics != nil {
		switch {
		case err != nil:
			c.metrics.RecordError(c.backend, "get")
		case ok:
			c.metrics.RecordHit(c.backend)
		default:
			c.metrics.RecordMiss(c.backend)
		}
	}
	return value, ok, err
}

// Set delegates to the wrapped cache and records failures.
func (c *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.inner.Set(ctx, key, value, ttl)
	if c.metrics != nil {
		if err != nil {
			c.metrics.RecordError(c.backend, "set")
		}
		c.updateEntries()
	}
	return err
}

// Delete delegates to the wrapped cache and records failures.
func (c *Instrumented) Delete(ctx context.Context, key string) error {
	err := c.inner.Delete(ctx, key)
	if c.metrics != nil {
		if err != nil {
			c.metrics.RecordError(c.backend, "delete")
		}
		c.updateEntries()
	}
	return err
}

// Ping delegates to the wrapped cache and records failures.
func (c *Instrumented) Ping(ctx context.Context) error {
	err := c.inner.Ping(ctx)
	if err != nil && c.metrics != nil {
		c.metrics.RecordError(c.backend, "ping")
	}
	return err
}

// Close closes the wrapped cache.
func (c *Instrumented) Close() error {
	return c.inner.Close()
}

func (c *Instrumented) updateEntries() {
	if s, ok := c.inner.(sizer); ok {
		c.metrics.UpdateEntries(c.backend, s.Size())
	}
}
