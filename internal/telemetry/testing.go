package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// TestTelemetry backs tests with in-memory span and metric recording, so
// assertions run without a collector and without touching the otel globals.
type TestTelemetry struct {
	Spans *tracetest.SpanRecorder

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
}

// NewTestTelemetry builds providers wired to in-memory recorders.
func NewTestTelemetry() *TestTelemetry {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	return &TestTelemetry{
		Spans:          spans,
		tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:         reader,
	}
}

// Tracer returns a tracer recording into Spans.
func (t *TestTelemetry) Tracer(name string) trace.Tracer {
	return t.tracerProvider.Tracer(name)
}

// Meter returns a meter whose instruments report through Collect.
func (t *TestTelemetry) Meter(name string) metric.Meter {
	return t.meterProvider.Meter(name)
}

// SpanByName returns the first ended span with the given name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, span := range t.Spans.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// AssertSpanExists fails the test when no ended span carries the name.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) != nil {
		return
	}
	var names []string
	for _, span := range t.Spans.Ended() {
		names = append(names, span.Name())
	}
	tb.Errorf("expected span %q not found, got: %v", name, names)
}

// Collect gathers everything the meter instruments have recorded so far.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}
