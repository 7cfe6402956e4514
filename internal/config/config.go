// Package config provides configuration loading for remedyd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. Every section has working defaults so the daemon starts with
// no configuration at all.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete remedyd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Platform      PlatformConfig      `koanf:"platform"`
	Patterns      PatternsConfig      `koanf:"patterns"`
	Match         MatchConfig         `koanf:"match"`
	Enrich        EnrichConfig        `koanf:"enrich"`
	AutoFix       AutoFixConfig       `koanf:"autofix"`
	Audit         AuditConfig         `koanf:"audit"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"`
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
}

// PlatformConfig holds the platform API client configuration.
type PlatformConfig struct {
	BaseURL string   `koanf:"base_url"`
	Token   Secret   `koanf:"token"`
	Timeout Duration `koanf:"timeout"`
}

// PatternsConfig holds the pattern corpus configuration. An empty path
// serves the compiled-in corpus.
type PatternsConfig struct {
	CorpusPath string `koanf:"corpus_path"`
	Watch      bool   `koanf:"watch"`
}

// MatchConfig holds the scoring weights and acceptance threshold.
type MatchConfig struct {
	KeyWeight    float64 `koanf:"key_weight"`
	TitleWeight  float64 `koanf:"title_weight"`
	DetailWeight float64 `koanf:"detail_weight"`
	Threshold    float64 `koanf:"threshold"`
}

// EnrichConfig holds the context enricher configuration.
type EnrichConfig struct {
	ProbeTimeout Duration `koanf:"probe_timeout"`
	HistorySize  int      `koanf:"history_size"`
	RepeatWindow Duration `koanf:"repeat_window"`
}

// AutoFixConfig holds the fix engine gates.
type AutoFixConfig struct {
	ConfidenceGate   float64  `koanf:"confidence_gate"`
	VerifyTimeout    Duration `koanf:"verify_timeout"`
	AutoApprove      bool     `koanf:"auto_approve"`
	FixesPerMinute   float64  `koanf:"fixes_per_minute"`
	FixBurstPerScope int      `koanf:"fix_burst_per_scope"`
}

// AuditConfig holds the audit sink configuration. With Enabled false (or no
// NATS URL) events are kept in memory only.
type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
}

// LoggingConfig holds logger configuration. RedactPatterns extends the
// built-in credential redaction set; SamplingTick overrides the sampling
// window when set.
type LoggingConfig struct {
	Level          string   `koanf:"level"`
	Format         string   `koanf:"format"`
	RedactPatterns []string `koanf:"redact_patterns"`
	SamplingTick   Duration `koanf:"sampling_tick"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Match.Threshold < 0 || c.Match.Threshold >= 1 {
		return fmt.Errorf("match threshold must be in [0,1): %v", c.Match.Threshold)
	}
	if c.AutoFix.ConfidenceGate < 0 || c.AutoFix.ConfidenceGate > 1 {
		return fmt.Errorf("confidence gate must be in [0,1]: %v", c.AutoFix.ConfidenceGate)
	}
	if c.Audit.Enabled && c.Audit.NATSURL == "" {
		return errors.New("audit nats_url required when audit publishing is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9272
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "remedyd"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}

	if cfg.Platform.Timeout == 0 {
		cfg.Platform.Timeout = Duration(30 * time.Second)
	}

	if cfg.Match.KeyWeight == 0 && cfg.Match.TitleWeight == 0 && cfg.Match.DetailWeight == 0 {
		cfg.Match.KeyWeight = 0.5
		cfg.Match.TitleWeight = 0.3
		cfg.Match.DetailWeight = 0.2
	}
	if cfg.Match.Threshold == 0 {
		cfg.Match.Threshold = 0.7
	}

	if cfg.Enrich.ProbeTimeout == 0 {
		cfg.Enrich.ProbeTimeout = Duration(2 * time.Second)
	}
	if cfg.Enrich.HistorySize == 0 {
		cfg.Enrich.HistorySize = 50
	}
	if cfg.Enrich.RepeatWindow == 0 {
		cfg.Enrich.RepeatWindow = Duration(10 * time.Minute)
	}

	if cfg.AutoFix.ConfidenceGate == 0 {
		cfg.AutoFix.ConfidenceGate = 0.8
	}
	if cfg.AutoFix.VerifyTimeout == 0 {
		cfg.AutoFix.VerifyTimeout = Duration(30 * time.Second)
	}
	if cfg.AutoFix.FixesPerMinute == 0 {
		cfg.AutoFix.FixesPerMinute = 1
	}
	if cfg.AutoFix.FixBurstPerScope == 0 {
		cfg.AutoFix.FixBurstPerScope = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
