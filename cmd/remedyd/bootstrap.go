package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halcyonlabs/remedyd/internal/audit"
	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/config"
	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/enrich"
	"github.com/halcyonlabs/remedyd/internal/logging"
	"github.com/halcyonlabs/remedyd/internal/match"
	"github.com/halcyonlabs/remedyd/internal/patterns"
	"github.com/halcyonlabs/remedyd/internal/pipeline"
	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
	"github.com/halcyonlabs/remedyd/internal/telemetry"
)

// app holds everything the daemon wires together at startup.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	natsConn *nats.Conn
	library  *patterns.Library
	fixer    *autofix.Engine
	pipeline pipeline.Service
}

// newApp loads configuration and builds the full pipeline. The returned app
// must be closed with Close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := initLogger(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zlog := logger.Underlying()

	a := &app{cfg: cfg, logger: logger, tel: tel}

	fail := func(err error) (*app, error) {
		a.Close(ctx)
		return nil, err
	}

	// Pattern corpus: file-backed when configured, built-in otherwise.
	if cfg.Patterns.CorpusPath != "" {
		a.library, err = patterns.LoadFile(cfg.Patterns.CorpusPath, zlog)
		if err != nil {
			return fail(fmt.Errorf("loading pattern corpus: %w", err))
		}
		if cfg.Patterns.Watch {
			if err := a.library.Watch(ctx, cfg.Patterns.CorpusPath); err != nil {
				logger.Warn(ctx, "pattern corpus watch unavailable", zap.Error(err))
			}
		}
	} else {
		a.library = patterns.Builtin(zlog)
	}
	logger.Info(ctx, "pattern corpus loaded",
		zap.String("version", a.library.Version()),
		zap.Int("patterns", a.library.Len()),
	)

	client, err := platform.NewHTTPClient(platform.HTTPConfig{
		BaseURL: cfg.Platform.BaseURL,
		Token:   cfg.Platform.Token.Value(),
		Timeout: cfg.Platform.Timeout.Duration(),
	}, zlog)
	if err != nil {
		return fail(fmt.Errorf("creating platform client: %w", err))
	}

	enricher, err := enrich.New(enrich.Config{
		ProbeTimeout: cfg.Enrich.ProbeTimeout.Duration(),
		HistorySize:  cfg.Enrich.HistorySize,
		RepeatWindow: cfg.Enrich.RepeatWindow.Duration(),
	}, client, zlog)
	if err != nil {
		return fail(fmt.Errorf("creating context enricher: %w", err))
	}

	sink, err := a.initAuditSink(ctx)
	if err != nil {
		return fail(err)
	}

	a.fixer = autofix.New(autofix.Config{
		ConfidenceGate: cfg.AutoFix.ConfidenceGate,
		VerifyTimeout:  cfg.AutoFix.VerifyTimeout.Duration(),
		AutoApprove:    cfg.AutoFix.AutoApprove,
		ScopeRate:      scopeRate(cfg.AutoFix.FixesPerMinute),
		ScopeBurst:     cfg.AutoFix.FixBurstPerScope,
	}, autofix.DefaultStrategies(client, zlog), sink, zlog)

	a.pipeline, err = pipeline.NewService(
		a.library,
		match.New(match.Config{
			KeyWeight:    cfg.Match.KeyWeight,
			TitleWeight:  cfg.Match.TitleWeight,
			DetailWeight: cfg.Match.DetailWeight,
			Threshold:    cfg.Match.Threshold,
		}, a.library),
		enricher,
		diagnose.New(diagnose.DefaultConfig(), zlog),
		solution.New(zlog),
		a.fixer,
		zlog,
	)
	if err != nil {
		return fail(fmt.Errorf("creating pipeline service: %w", err))
	}

	return a, nil
}

// Close releases all resources in reverse initialization order.
func (a *app) Close(ctx context.Context) {
	if a.pipeline != nil {
		_ = a.pipeline.Close()
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// initAuditSink connects the NATS audit sink when enabled, falling back to
// the in-memory sink otherwise.
func (a *app) initAuditSink(ctx context.Context) (audit.Sink, error) {
	if !a.cfg.Audit.Enabled {
		return audit.NewMemorySink(), nil
	}

	nc, err := nats.Connect(a.cfg.Audit.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", a.cfg.Audit.NATSURL, err)
	}
	a.natsConn = nc
	a.logger.Info(ctx, "audit sink connected", zap.String("url", a.cfg.Audit.NATSURL))

	return audit.NewNATSSink(nc, a.logger.Underlying())
}

// initTelemetry builds the OTLP providers from the observability config.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Observability.EnableTelemetry
	tcfg.ServiceVersion = version
	if cfg.Observability.ServiceName != "" {
		tcfg.ServiceName = cfg.Observability.ServiceName
	}
	if cfg.Observability.OTLPEndpoint != "" {
		tcfg.Endpoint = cfg.Observability.OTLPEndpoint
	}
	if cfg.Observability.OTLPProtocol != "" {
		tcfg.Protocol = cfg.Observability.OTLPProtocol
	}
	tcfg.Insecure = cfg.Observability.OTLPInsecure

	return telemetry.New(ctx, tcfg)
}

// initLogger builds the structured logger from the logging config.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		lcfg.Level = level
	}
	if cfg.Logging.Format != "" {
		lcfg.Format = cfg.Logging.Format
	}
	if len(cfg.Logging.RedactPatterns) > 0 {
		lcfg.Redaction.Patterns = append(lcfg.Redaction.Patterns, cfg.Logging.RedactPatterns...)
	}
	if cfg.Logging.SamplingTick.Duration() > 0 {
		lcfg.Sampling.Tick = cfg.Logging.SamplingTick
	}
	lcfg.Output.OTEL = tel.IsEnabled() && tel.LoggerProvider() != nil

	return logging.NewLogger(lcfg, tel.LoggerProvider())
}

// scopeRate converts a fixes-per-minute budget into a limiter rate. Zero or
// negative budgets fall back to one fix per minute.
func scopeRate(perMinute float64) rate.Limit {
	if perMinute <= 0 {
		return rate.Every(time.Minute)
	}
	return rate.Every(time.Duration(float64(time.Minute) / perMinute))
}
