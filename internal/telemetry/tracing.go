// Package telemetry sets up OpenTelemetry tracing for a download run.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used for run spans.
const InstrumentationName = "github.com/JakeFAU/cse-daily-fetcher"

// Config selects the service identity and the optional OTLP/HTTP exporter.
type Config struct {
	ServiceName string
	// OTLPEndpoint is a full URL such as http://collector:4318/v1/traces.
	// Empty keeps spans in process; they still propagate to Pub/Sub.
	OTLPEndpoint string
	Headers      map[string]string
}

// Tracing owns the tracer provider installed by Init.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// Init builds a tracer provider and installs it, together with the W3C trace
// context and baggage propagators, as the global default. Extra options are
// appended to the provider, which lets tests attach an in-memory exporter.
func Init(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Tracing, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint),
			otlptracehttp.WithHeaders(cfg.Headers),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	providerOpts = append(providerOpts, opts...)

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &Tracing{provider: tp}, nil
}

// Tracer returns the run tracer. A nil Tracing yields the global tracer.
func (t *Tracing) Tracer() trace.Tracer {
	if t == nil || t.provider == nil {
		return otel.Tracer(InstrumentationName)
	}
	return t.provider.Tracer(InstrumentationName)
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}
	return nil
}
