package policy

import (
	"errors"
	"fmt"
)

// Common policy errors that can be checked with errors.Is().
var (
	// ErrNoActivePolicy is returned by stores when a tenant has no active
	// policy document. The manager converts it into an empty permissive
	// policy rather than failing the turn.
	ErrNoActivePolicy = errors.New("no active policy")

	// ErrLoadFailed is returned when a tenant's active policy cannot be
	// loaded from its backing store.
	ErrLoadFailed = errors.New("policy load failed")
)

// LoadError is returned when a tenant's active policy cannot be loaded.
type LoadError struct {
	// TenantID is the tenant whose load failed.
	TenantID string

	// Cause is the underlying store error.
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load active policy for tenant %q: %v", e.TenantID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is().
func (e *LoadError) Is(target error) bool {
	return target == ErrLoadFailed
}
