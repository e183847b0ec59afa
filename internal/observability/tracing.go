package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/crucible-ai/crucible/internal/config"
)

// Tracer returns the tracer the daemon should hand to its components.
//
// When tracing is disabled the returned tracer is a no-op, so instrumented
// code pays nothing. When enabled it comes from the global tracer provider;
// installing an exporting provider (OTLP or otherwise) is the embedding
// process's responsibility via otel.SetTracerProvider.
func Tracer(cfg config.TracingConfig) trace.Tracer {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer("crucible")
	}
	name := cfg.ServiceName
	if name == "" {
		name = "crucible"
	}
	return otel.GetTracerProvider().Tracer(name)
}
