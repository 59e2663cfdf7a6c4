// Package telemetry bootstraps the OpenTelemetry tracer provider the
// pipeline's per-phase spans (internal/pipeline's otel.Tracer call) report
// through. spec.md has no tracing surface of its own; this exists so the
// teacher's go.opentelemetry.io/otel + otel/sdk direct dependencies are
// actually exercised rather than left declared and unused.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Shutdown flushes and stops the tracer provider installed by Init.
type Shutdown func(context.Context) error

// Init installs a global TracerProvider. enabled controls whether spans are
// actually sampled and recorded: when false, an always-off sampler keeps the
// span API callable with zero overhead, so internal/pipeline never needs an
// enablement check of its own.
func Init(serviceName string, enabled bool) (Shutdown, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	sampler := sdktrace.NeverSample()
	if enabled {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
