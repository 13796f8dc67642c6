package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// W3C trace context rides the traceparent and tracestate headers. The
// propagator handling them is installed globally by New when tracing is
// enabled; until then these helpers are no-ops.

// Extract pulls trace context from incoming request headers. The server
// calls this before starting its request span so upstream traces
// continue here.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the current trace context into outgoing request headers.
// The completion client calls this so classify and generate requests
// show up under the turn's trace.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractFromMap is the map-carrier variant of Extract for non-HTTP
// transports.
func ExtractFromMap(ctx context.Context, carrier map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// InjectToMap is the map-carrier variant of Inject.
func InjectToMap(ctx context.Context, carrier map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(carrier))
}
