package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry owns the OTLP trace and metric providers for the daemon.
// A disabled or degraded instance is safe everywhere a live one is:
// every method tolerates a nil receiver and missing providers, and the
// per-package otel.Tracer/otel.Meter calls fall back to the no-op
// globals.
type Telemetry struct {
	config *Config

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	degraded atomic.Bool
	stopped  atomic.Bool
}

// New builds providers per config and installs them as the otel globals.
// Exporter construction failures mark the instance degraded instead of
// failing startup; a diagnosis daemon must come up even when the
// collector is down.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		t.degraded.Store(true)
		return t, nil
	}

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degraded.Store(true)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.degraded.Store(true)
	} else if mp != nil {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

// LoggerProvider returns the provider backing the zap OTEL bridge, or nil
// when no log pipeline is configured.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// Shutdown flushes and stops the providers. Without a caller deadline the
// configured shutdown timeout applies, so a wedged collector cannot stall
// daemon shutdown.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	t.stopped.Store(true)
	return errors.Join(errs...)
}

// IsEnabled reports whether the instance is configured to export and has
// not been shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && !t.stopped.Load()
}

// Degraded reports whether any provider failed to initialize.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}
