package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Domain attributes live in the switchboard
// namespace; HTTP attributes follow the OpenTelemetry semantic
// conventions.
const (
	AttrCallID         = "switchboard.call_id"
	AttrTenantID       = "switchboard.tenant_id"
	AttrTurnNumber     = "switchboard.turn_number"
	AttrStage          = "switchboard.stage"
	AttrAction         = "switchboard.action"
	AttrCategory       = "switchboard.category"
	AttrShortCircuited = "switchboard.short_circuited"

	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
)

// StartRequest opens a server span for one HTTP request. route is the
// registered pattern, not the raw path, so span names stay
// low-cardinality.
func StartRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrHTTPMethod, method),
			attribute.String(AttrHTTPRoute, route),
		),
	)
}

// StartTurn opens the span covering one caller turn.
func StartTurn(ctx context.Context, callID, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, "turn.run",
		trace.WithAttributes(
			attribute.String(AttrCallID, callID),
			attribute.String(AttrTenantID, tenantID),
		),
	)
}

// StartStage opens a child span for one pipeline stage.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, "stage."+stage,
		trace.WithAttributes(attribute.String(AttrStage, stage)),
	)
}

// SetTurnResult records the turn's decision on its span.
func SetTurnResult(span trace.Span, turnNumber int, action, category string, shortCircuited bool) {
	span.SetAttributes(
		attribute.Int(AttrTurnNumber, turnNumber),
		attribute.String(AttrAction, action),
		attribute.Bool(AttrShortCircuited, shortCircuited),
	)
	if category != "" {
		span.SetAttributes(attribute.String(AttrCategory, category))
	}
}
