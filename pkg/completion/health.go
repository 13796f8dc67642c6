package completion

import (
	"sync"
	"time"
)

// unhealthyThreshold is how many consecutive failures mark the service
// unhealthy.
const unhealthyThreshold = 3

// Health is a snapshot of the completion service's recent behavior as seen
// by this client. The turn pipeline already degrades per call; the snapshot
// exists so operators can tell a blip from an outage.
type Health struct {
	// Healthy is false after unhealthyThreshold consecutive failures and
	// true again after the next success.
	Healthy bool

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int

	// LastError is the most recent failure, nil while healthy.
	LastError error

	// LastSuccess is when the service last answered a request.
	LastSuccess time.Time

	// TotalRequests counts every completed call attempt.
	TotalRequests int64

	// FailedRequests counts calls that ended in failure.
	FailedRequests int64
}

type healthState struct {
	mu sync.Mutex
	h  Health
}

// Health returns the current service health snapshot.
func (c *HTTPClient) Health() Health {
	c.health.mu.Lock()
	defer c.health.mu.Unlock()
	return c.health.h
}

// Healthy reports whether the service has been answering recently.
func (c *HTTPClient) Healthy() bool {
	c.health.mu.Lock()
	defer c.health.mu.Unlock()
	return c.health.h.Healthy
}

func (c *HTTPClient) recordSuccess() {
	c.health.mu.Lock()
	defer c.health.mu.Unlock()

	h := &c.health.h
	recovered := !h.Healthy
	h.Healthy = true
	h.ConsecutiveFailures = 0
	h.LastError = nil
	h.LastSuccess = time.Now()
	h.TotalRequests++

	if recovered {
		c.logger.Info("completion service recovered",
			"failed_requests", h.FailedRequests,
		)
	}
}

func (c *HTTPClient) recordFailure(err error) {
	c.health.mu.Lock()
	defer c.health.mu.Unlock()

	h := &c.health.h
	h.ConsecutiveFailures++
	h.LastError = err
	h.TotalRequests++
	h.FailedRequests++

	if h.Healthy && h.ConsecutiveFailures >= unhealthyThreshold {
		h.Healthy = false
		c.logger.Warn("completion service marked unhealthy",
			"consecutive_failures", h.ConsecutiveFailures,
			"error", err,
		)
	}
}
