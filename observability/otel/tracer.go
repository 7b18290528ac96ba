package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ProtocolTracer adapts the global OTel tracer provider to the small Span
// interface core/protocol.Driver expects, so the core never imports
// go.opentelemetry.io directly.
type ProtocolTracer struct {
	name string
}

// NewProtocolTracer returns a tracer that names spans under the given
// instrumentation scope (e.g. "nhbchain/core/protocol").
func NewProtocolTracer(instrumentationName string) ProtocolTracer {
	return ProtocolTracer{name: instrumentationName}
}

// Span starts a span named spanName and returns the derived context plus a
// function that ends it. Matches protocol.Tracer.
func (t ProtocolTracer) Span(ctx context.Context, spanName string) (context.Context, func()) {
	tracer := otel.Tracer(t.name)
	var span trace.Span
	ctx, span = tracer.Start(ctx, spanName)
	return ctx, func() { span.End() }
}
