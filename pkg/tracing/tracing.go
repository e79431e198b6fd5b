// Package tracing wraps the global otel TracerProvider the way reva's own
// pkg/trace does (internal/http/services/owncloud/ocdav/propfind/propfind.go:
// `rtrace.Provider.Tracer(name).Start(ctx, spanName)`), so call sites depend
// on a single package-level Provider rather than threading a tracer through
// every constructor.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Provider is the process-wide TracerProvider. It defaults to whatever
// otel.GetTracerProvider returns (a no-op provider until an exporter is
// registered), matching reva's pattern of spans that cost nothing when no
// backend is configured.
var Provider trace.TracerProvider = otel.GetTracerProvider()

// Start begins a span named name under component's tracer, returning the
// derived context and the span so the caller can `defer span.End()`.
func Start(ctx context.Context, component, name string) (context.Context, trace.Span) {
	return Provider.Tracer(component).Start(ctx, name)
}
