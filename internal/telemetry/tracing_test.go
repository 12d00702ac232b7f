package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitInstallsPropagatorAndRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracing, err := Init(context.Background(), Config{ServiceName: "cse-daily-fetcher"}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)

	ctx, span := tracing.Tracer().Start(context.Background(), "download")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()

	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "download", spans[0].Name)
	assert.Equal(t, InstrumentationName, spans[0].InstrumentationScope.Name)

	require.NoError(t, tracing.Shutdown(context.Background()))
}

func TestInitExportsToOTLPEndpoint(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tracing, err := Init(context.Background(), Config{
		ServiceName:  "cse-daily-fetcher",
		OTLPEndpoint: srv.URL + "/v1/traces",
	})
	require.NoError(t, err)

	_, span := tracing.Tracer().Start(context.Background(), "download")
	span.End()
	require.NoError(t, tracing.Shutdown(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestNilTracingFallsBackToGlobal(t *testing.T) {
	var tracing *Tracing
	assert.NotNil(t, tracing.Tracer())
	assert.NoError(t, tracing.Shutdown(context.Background()))
}
