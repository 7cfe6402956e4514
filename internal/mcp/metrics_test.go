package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestMetrics_RecordInvocation(t *testing.T) {
	// Create a manual reader to collect metrics
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	logger := zap.NewNop()
	m := &Metrics{
		meter:  mp.Meter(instrumentationName),
		logger: logger,
	}
	m.init()

	ctx := context.Background()

	// Test successful invocation
	m.RecordInvocation(ctx, "diagnose_and_repair", 100*time.Millisecond, nil)

	// Test invocation with error
	m.RecordInvocation(ctx, "diagnose_and_repair", 50*time.Millisecond, errors.New("validation error"))

	// Collect metrics
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected scope metrics, got none")
	}

	foundInvocations := false
	foundDuration := false
	foundErrors := false

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "remedyd.mcp.tool.invocations_total":
				foundInvocations = true
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					total := int64(0)
					for _, dp := range sum.DataPoints {
						total += dp.Value
					}
					if total != 2 {
						t.Errorf("expected 2 invocations, got %d", total)
					}
				}
			case "remedyd.mcp.tool.duration_seconds":
				foundDuration = true
			case "remedyd.mcp.tool.errors_total":
				foundErrors = true
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					total := int64(0)
					for _, dp := range sum.DataPoints {
						total += dp.Value
					}
					if total != 1 {
						t.Errorf("expected 1 error, got %d", total)
					}
				}
			}
		}
	}

	if !foundInvocations {
		t.Error("invocations counter not found")
	}
	if !foundDuration {
		t.Error("duration histogram not found")
	}
	if !foundErrors {
		t.Error("errors counter not found")
	}
}

func TestMetrics_ActiveRequests(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &Metrics{
		meter:  mp.Meter(instrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	ctx := context.Background()

	m.IncrementActive(ctx, "fix_execute")
	m.IncrementActive(ctx, "fix_execute")
	m.DecrementActive(ctx, "fix_execute")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "remedyd.mcp.tool.active_requests" {
				continue
			}
			found = true
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				total := int64(0)
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				if total != 1 {
					t.Errorf("expected 1 active request, got %d", total)
				}
			}
		}
	}

	if !found {
		t.Error("active requests gauge not found")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"not found", errors.New("fix not found: f-1"), "not_found"},
		{"rate limited", errors.New("fix execution rate limited: ctr_ABC"), "rate_limited"},
		{"approval required", errors.New("fix requires explicit approval"), "approval_required"},
		{"invalid transition", errors.New("invalid fix transition from succeeded to executing"), "lifecycle_error"},
		{"validation", errors.New("operation_name is required"), "validation_error"},
		{"timeout", errors.New("verify timeout exceeded"), "timeout"},
		{"closed", errors.New("pipeline service is closed"), "unavailable"},
		{"unknown", errors.New("something broke"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorizeError(tt.err); got != tt.want {
				t.Errorf("categorizeError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
