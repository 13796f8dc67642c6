package health

import (
	"context"
	"sync"
	"time"
)

// Component statuses reported by the checker.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one component. It returns nil when the component can
// serve its part of a turn.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of one component check.
type Result struct {
	// Status is StatusOK or StatusUnhealthy.
	Status string `json:"status"`

	// Message carries the failure detail for unhealthy components.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// Status aggregates the component checks.
type Status struct {
	// Status is the overall verdict: StatusOK for liveness, StatusReady
	// or StatusDegraded for readiness.
	Status string `json:"status"`

	// Checks holds per-component results for readiness responses.
	Checks map[string]Result `json:"checks,omitempty"`

	// Timestamp is when the probe ran.
	Timestamp time.Time `json:"timestamp"`
}

// Checker runs registered component checks for the readiness probe.
// Components register once at assembly: the document store, the cache,
// the audit backend.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// New builds a checker. Each component check is bounded by timeout;
// zero means 5 seconds.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// Register adds a named component check, replacing one already
// registered under the same name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Liveness reports that the process is up. It never probes components.
func (c *Checker) Liveness(ctx context.Context) Status {
	return Status{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// Readiness probes every registered component concurrently and reports
// StatusDegraded when any of them fails. With nothing registered the
// system is ready by definition.
func (c *Checker) Readiness(ctx context.Context) Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	if len(checks) == 0 {
		return Status{
			Status:    StatusReady,
			Checks:    map[string]Result{},
			Timestamp: time.Now(),
		}
	}

	results := make(map[string]Result, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			result := c.run(ctx, check)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	overall := StatusReady
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			overall = StatusDegraded
		}
	}

	return Status{
		Status:    overall,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// run executes one check under the per-check timeout.
func (c *Checker) run(ctx context.Context, check CheckFunc) Result {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		duration := time.Since(start)
		if err != nil {
			return Result{
				Status:   StatusUnhealthy,
				Message:  err.Error(),
				Duration: duration,
			}
		}
		return Result{
			Status:   StatusOK,
			Duration: duration,
		}

	case <-checkCtx.Done():
		return Result{
			Status:   StatusUnhealthy,
			Message:  "health check timed out",
			Duration: time.Since(start),
		}
	}
}
