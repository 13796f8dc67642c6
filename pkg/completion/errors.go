package completion

import (
	"fmt"
	"time"
)

// ServiceError indicates the completion service returned a failure
// response or could not be reached.
type ServiceError struct {
	// StatusCode is the HTTP status, or 0 when no response arrived.
	StatusCode int

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion service error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion service error: %s", e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// AuthError indicates the service rejected our credentials. Retrying
// cannot help.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("completion auth error: %s", e.Message)
}

// RateLimitError indicates the service throttled the request.
type RateLimitError struct {
	// RetryAfter is the wait the service suggested, zero when it gave none.
	RetryAfter time.Duration

	Message string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("completion rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("completion rate limited: %s", e.Message)
}

// TimeoutError indicates the call exceeded its deadline.
type TimeoutError struct {
	// Timeout is the configured per-call limit.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("completion request timed out after %s", e.Timeout)
}

// ParseError indicates the service answered but the payload could not be
// interpreted. The raw text is kept for diagnosis.
type ParseError struct {
	// RawResponse is a truncated copy of the offending payload.
	RawResponse string

	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse completion response: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
