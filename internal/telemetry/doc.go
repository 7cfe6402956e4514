// Package telemetry wires OTLP tracing and metrics for remedyd.
//
// New installs the configured providers as the otel globals, so the rest
// of the codebase reaches them through otel.Tracer and otel.Meter with a
// per-package instrumentation name:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := otel.Tracer("remedyd.pipeline")
//	ctx, span := tracer.Start(ctx, "pipeline.diagnose")
//	defer span.End()
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  service_name: "remedyd"
//	  sampling:
//	    rate: 1.0  # 100% in dev, lower in prod
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Error Handling
//
// Telemetry failures never crash the daemon. When an exporter cannot be
// built the instance reports Degraded and the otel globals stay no-op.
//
// # Testing
//
// TestTelemetry records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
