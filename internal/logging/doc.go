// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, request, fix, diagnosis)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithRequestID(ctx, "req_123")
//	ctx = logging.WithFixID(ctx, "fix_456")
//	logger.Info(ctx, "fix approved", zap.String("actor", actor))
//
// Output includes automatic correlation: trace_id and span_id from the
// active span plus any request, diagnosis, and fix identifiers stored in
// the context.
//
// # Redaction
//
// The platform API token and any bearer-style credentials must never reach
// log output. Field-name redaction catches fields named token, secret,
// api_key and similar; pattern redaction catches credential-shaped values
// inside free-form strings.
package logging
