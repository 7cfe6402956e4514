package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/remedyd/internal/config"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name: "disabled skips validation",
			mutate: func(c *Config) {
				c.Enabled = false
				c.Endpoint = ""
			},
		},
		{
			name: "missing endpoint",
			mutate: func(c *Config) {
				c.Endpoint = ""
			},
			wantErr: "endpoint is required",
		},
		{
			name: "bad protocol",
			mutate: func(c *Config) {
				c.Protocol = "thrift"
			},
			wantErr: "protocol must be",
		},
		{
			name: "missing service name",
			mutate: func(c *Config) {
				c.ServiceName = ""
			},
			wantErr: "service_name is required",
		},
		{
			name: "insecure remote endpoint rejected",
			mutate: func(c *Config) {
				c.Insecure = true
				c.Endpoint = "collector.example.com:4317"
			},
			wantErr: "insecure connections to remote endpoints",
		},
		{
			name: "secure remote endpoint allowed",
			mutate: func(c *Config) {
				c.Insecure = false
				c.Endpoint = "collector.example.com:4317"
			},
		},
		{
			name: "sampling rate out of range",
			mutate: func(c *Config) {
				c.Sampling.Rate = 1.5
			},
			wantErr: "sampling.rate",
		},
		{
			name: "zero export interval with metrics enabled",
			mutate: func(c *Config) {
				c.Metrics.ExportInterval = config.Duration(0)
			},
			wantErr: "export_interval",
		},
		{
			name: "zero shutdown timeout",
			mutate: func(c *Config) {
				c.Shutdown.Timeout = config.Duration(0)
			},
			wantErr: "shutdown.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.53:4317", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"collector.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.local, cfg.isLocalEndpoint())
		})
	}
}

func TestNewDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	require.False(t, cfg.Enabled)

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.False(t, tel.IsEnabled())
	assert.False(t, tel.Degraded())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNilTelemetrySafe(t *testing.T) {
	var tel *Telemetry

	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.IsEnabled())
	assert.False(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestShutdownDisablesInstance(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	tel := &Telemetry{config: cfg}
	require.True(t, tel.IsEnabled())

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}

func TestTestTelemetrySpans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("remedyd.test")
	_, span := tracer.Start(context.Background(), "diagnose")
	span.End()

	tt.AssertSpanExists(t, "diagnose")
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestTestTelemetryMetrics(t *testing.T) {
	tt := NewTestTelemetry()

	meter := tt.Meter("remedyd.test")
	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
}

func TestShutdownUsesConfiguredTimeout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(50 * time.Millisecond)

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}
