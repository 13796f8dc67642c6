// Package logging provides structured logging with caller PII redaction.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - Automatic caller PII redaction (phone numbers, emails, addresses, etc.)
//   - Context-aware logging with call, tenant, and turn identifiers
//   - Async buffering so logging never blocks the turn pipeline
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	// Create a logger
//	logger := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	// Log structured data
//	logger.Info("Turn processed",
//	    "call_id", "call-123",
//	    "utterance", "call me at 555-867-5309",  // Phone number redacted
//	    "duration_ms", 8,
//	)
//
//	// Create context-aware logger
//	ctx := logging.WithCallID(ctx, "call-123")
//	ctxLogger := logger.WithContext(ctx)
//	ctxLogger.Info("Classifying")  // Includes call_id automatically
//
// # PII Redaction
//
// Utterances and caller records pass through the service constantly, so
// redaction is on by default for every string field:
//
//   - Phone numbers: (555) 867-5309 → ***-***-****
//   - Emails: user@example.com → ***@***
//   - SSN: 123-45-6789 → ***-**-****
//   - Credit cards: 4111-1111-1111-1111 → ****-****-****-****
//   - Street addresses: 1203 Maple Street → [address]
//
// # Performance
//
// Async buffering ensures logging doesn't block turn processing:
//   - <1µs when log level filters out the message
//   - Lines are dropped and counted, never blocked on, when the buffer fills
package logging
