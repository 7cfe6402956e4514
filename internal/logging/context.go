package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if diagnosisID := DiagnosisIDFromContext(ctx); diagnosisID != "" {
		fields = append(fields, zap.String("diagnosis.id", diagnosisID))
	}
	if fixID := FixIDFromContext(ctx); fixID != "" {
		fields = append(fields, zap.String("fix.id", fixID))
	}

	return fields
}

// Context key types
type requestCtxKey struct{}
type diagnosisCtxKey struct{}
type fixCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateID validates a correlation ID before it enters the context.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// DiagnosisIDFromContext extracts diagnosis ID from context.
func DiagnosisIDFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(diagnosisCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// WithDiagnosisID adds diagnosis ID to context.
// Panics if diagnosisID is empty or contains invalid characters.
func WithDiagnosisID(ctx context.Context, diagnosisID string) context.Context {
	if err := validateID(diagnosisID, "diagnosisID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, diagnosisCtxKey{}, diagnosisID)
}

// FixIDFromContext extracts fix ID from context.
func FixIDFromContext(ctx context.Context) string {
	if f, ok := ctx.Value(fixCtxKey{}).(string); ok {
		return f
	}
	return ""
}

// WithFixID adds fix ID to context.
// Panics if fixID is empty or contains invalid characters.
func WithFixID(ctx context.Context, fixID string) context.Context {
	if err := validateID(fixID, "fixID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, fixCtxKey{}, fixID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
