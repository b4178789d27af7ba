// Package tracectx carries W3C trace context across HTTP process
// boundaries with explicit context passing.
//
// Every function that may create a child span takes the parent context
// as an argument; nothing here consults ambient "current span" state.
// Relying on implicit attachment is how traces fractured into
// disconnected segments in earlier iterations of this demo.
package tracectx

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Propagator extracts and injects W3C traceparent/tracestate headers.
type Propagator struct {
	tm propagation.TextMapPropagator
}

// New builds a propagator for the W3C trace context format plus baggage.
func New() *Propagator {
	return &Propagator{
		tm: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

// Extract parses inbound trace headers into ctx. Absent or malformed
// headers are never an error: the returned context simply has no remote
// span, isRoot is true, and the caller starts a new root trace.
func (p *Propagator) Extract(ctx context.Context, h http.Header) (context.Context, bool) {
	ctx = p.tm.Extract(ctx, propagation.HeaderCarrier(h))
	sc := trace.SpanContextFromContext(ctx)
	return ctx, !sc.IsValid()
}

// Inject serializes the span context active in ctx into outbound
// headers. Every cross-process call must pass through Inject, or the
// downstream span detaches from the caller's trace.
func (p *Propagator) Inject(ctx context.Context, h http.Header) {
	p.tm.Inject(ctx, propagation.HeaderCarrier(h))
}
