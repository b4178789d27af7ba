package httpserver

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/db-degradation-demo/internal/tracectx"
)

// TraceMiddleware extracts inbound W3C trace context and starts a server
// span for each request. Absent or malformed headers start a new root
// trace; the request is never failed for bad propagation input.
func TraceMiddleware(prop *tracectx.Propagator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, isRoot := prop.Extract(r.Context(), r.Header)
			tr := otel.Tracer("http.server")
			ctx, span := tr.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.Bool("trace.new_root", isRoot),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
