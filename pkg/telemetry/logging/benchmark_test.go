package logging

import (
	"io"
	"testing"
)

func BenchmarkLogger_Filtered(b *testing.B) {
	logger, err := New(Config{
		Level:      "error",
		Format:     "json",
		BufferSize: 1000,
		Writer:     io.Discard,
	})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	defer logger.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("filtered", "call_id", "call-1", "turn", i)
	}
}

func BenchmarkLogger_Info(b *testing.B) {
	logger, err := New(Config{
		Level:      "info",
		Format:     "json",
		BufferSize: 100000,
		Writer:     io.Discard,
	})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	defer logger.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("turn processed", "call_id", "call-1", "duration_ms", 8)
	}
}

func BenchmarkRedactor_CleanString(b *testing.B) {
	r := NewRedactor(nil)
	s := "the furnace is making a rattling noise again"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RedactString(s)
	}
}

func BenchmarkRedactor_PIIString(b *testing.B) {
	r := NewRedactor(nil)
	s := "call me at 555-867-5309 or jane@example.com"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RedactString(s)
	}
}
