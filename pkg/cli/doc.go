// Package cli holds the small shared pieces of the switchboard command
// line: typed command errors, output formatting for text and JSON, and
// shutdown signal plumbing. Everything heavier lives with the command
// that needs it under cmd/switchboard.
package cli
