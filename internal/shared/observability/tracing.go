package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer carries spans for the engine phases. Span export depends on the
// process installing a tracer provider; without one every span is a no-op.
var Tracer trace.Tracer = otel.Tracer("resym")
