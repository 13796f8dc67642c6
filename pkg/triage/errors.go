package triage

import (
	"errors"
	"fmt"
)

// Common triage errors that can be checked with errors.Is().
var (
	// ErrCompileFailed is returned when a tenant's rule set cannot be
	// compiled from its backing store.
	ErrCompileFailed = errors.New("rule set compilation failed")

	// ErrTooManyRules is returned when a tenant's combined rule count
	// exceeds the configured cap.
	ErrTooManyRules = errors.New("too many rules")

	// ErrNoCatchAll is returned when a rule set reaches the matcher
	// without a catch-all rule. This indicates a compiler bug, not a
	// runtime condition.
	ErrNoCatchAll = errors.New("rule set has no catch-all rule")
)

// CompileError is returned when a tenant's rule set cannot be compiled.
type CompileError struct {
	// TenantID is the tenant whose compilation failed.
	TenantID string

	// Cause is the underlying store or validation error.
	Cause error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile rule set for tenant %q: %v", e.TenantID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is().
func (e *CompileError) Is(target error) bool {
	return target == ErrCompileFailed
}

// RuleValidationError describes a single rule that failed compile-time
// validation. Invalid rules are skipped with a warning rather than failing
// the whole compilation.
type RuleValidationError struct {
	// RuleID is the offending rule.
	RuleID string

	// Source is where the rule came from.
	Source Source

	// Reason explains what was wrong.
	Reason string
}

// Error implements the error interface.
func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("rule %q (%s): %s", e.RuleID, e.Source, e.Reason)
}
