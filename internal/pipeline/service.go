// Package pipeline wires the diagnosis stages into a single operation:
// normalize the raw error, match it against the pattern corpus, enrich it
// with live platform context, fuse a diagnosis, generate solutions, and
// optionally propose an automated fix.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/enrich"
	"github.com/halcyonlabs/remedyd/internal/match"
	"github.com/halcyonlabs/remedyd/internal/normalize"
	"github.com/halcyonlabs/remedyd/internal/patterns"
	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
)

const instrumentationName = "github.com/halcyonlabs/remedyd/internal/pipeline"

// ErrServiceClosed is returned after Close.
var ErrServiceClosed = errors.New("pipeline service is closed")

// Options selects per-request behavior.
type Options struct {
	// AutoFix proposes an automated fix when the diagnosis clears the
	// confidence gate. The fix still follows preview/approval before
	// anything executes.
	AutoFix bool
	// Actor identifies the caller in audit events.
	Actor string
}

// Result is the complete outcome of one diagnosis request. It is always
// fully populated: an unmatched or even unparseable error still yields a
// diagnosis and at least one solution.
type Result struct {
	RequestID        string                  `json:"request_id"`
	Parsed           normalize.ParsedError   `json:"parsed"`
	Matches          []match.ErrorMatch      `json:"matches,omitempty"`
	Diagnosis        *diagnose.Diagnosis     `json:"diagnosis"`
	Solutions        []solution.Solution     `json:"solutions"`
	AutoFixAvailable bool                    `json:"auto_fix_available"`
	Fix              *autofix.Fix            `json:"fix,omitempty"`
	Context          *enrich.EnrichedContext `json:"context,omitempty"`
}

// Service runs the diagnosis pipeline.
type Service interface {
	// DiagnoseAndRepair diagnoses one raw platform error observed while
	// running op.
	DiagnoseAndRepair(ctx context.Context, raw []byte, op platform.Operation, opts Options) (*Result, error)

	// PatternsInfo reports the active pattern corpus version and size.
	PatternsInfo() (version string, count int)

	// Close closes the service.
	Close() error
}

// service implements the Service interface.
type service struct {
	library   *patterns.Library
	matcher   *match.Matcher
	enricher  *enrich.Enricher
	diagnoser *diagnose.Engine
	generator *solution.Generator
	fixer     *autofix.Engine
	logger    *zap.Logger

	// Telemetry
	tracer           trace.Tracer
	meter            metric.Meter
	diagnosisCounter metric.Int64Counter
	durationHist     metric.Float64Histogram

	mu     sync.RWMutex
	closed bool
}

// NewService creates the pipeline service.
func NewService(library *patterns.Library, matcher *match.Matcher, enricher *enrich.Enricher, diagnoser *diagnose.Engine, generator *solution.Generator, fixer *autofix.Engine, logger *zap.Logger) (Service, error) {
	if library == nil {
		return nil, errors.New("pattern library is required")
	}
	if matcher == nil {
		return nil, errors.New("matcher is required")
	}
	if enricher == nil {
		return nil, errors.New("enricher is required")
	}
	if diagnoser == nil {
		return nil, errors.New("diagnosis engine is required")
	}
	if generator == nil {
		return nil, errors.New("solution generator is required")
	}
	if fixer == nil {
		return nil, errors.New("fix engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		library:   library,
		matcher:   matcher,
		enricher:  enricher,
		diagnoser: diagnoser,
		generator: generator,
		fixer:     fixer,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.diagnosisCounter, err = s.meter.Int64Counter(
		"remedyd.pipeline.diagnoses_total",
		metric.WithDescription("Total number of diagnosis requests"),
		metric.WithUnit("{diagnosis}"),
	)
	if err != nil {
		s.logger.Warn("failed to create diagnosis counter", zap.Error(err))
	}

	s.durationHist, err = s.meter.Float64Histogram(
		"remedyd.pipeline.duration_seconds",
		metric.WithDescription("End-to-end diagnosis duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// DiagnoseAndRepair runs the full pipeline. Matching and enrichment run
// concurrently; neither can fail the request. The returned result is
// complete even when nothing matched.
func (s *service) DiagnoseAndRepair(ctx context.Context, raw []byte, op platform.Operation, opts Options) (*Result, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrServiceClosed
	}
	s.mu.RUnlock()

	start := time.Now()
	requestID := uuid.New().String()

	ctx, span := s.tracer.Start(ctx, "pipeline.diagnose_and_repair")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("operation", op.Name),
		attribute.Bool("auto_fix", opts.AutoFix),
	)

	parsed := normalize.NormalizeJSON(raw)
	s.enricher.RecordOperation(op, parsed.ErrorType)

	var (
		matches []match.ErrorMatch
		ec      *enrich.EnrichedContext
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches = s.matcher.Match(parsed)
		return nil
	})
	g.Go(func() error {
		ec = s.enricher.Enrich(gctx, op, parsed.ErrorType)
		return nil
	})
	// Both stages are total; Wait only joins them.
	_ = g.Wait()

	d := s.diagnoser.Diagnose(ctx, parsed, matches, ec)
	sols := s.generator.Generate(ctx, d, parsed, ec)

	result := &Result{
		RequestID: requestID,
		Parsed:    parsed,
		Matches:   matches,
		Diagnosis: d,
		Solutions: sols,
		Context:   ec,
	}
	for _, sol := range sols {
		if sol.AutoFixable() {
			result.AutoFixAvailable = true
			break
		}
	}

	if opts.AutoFix && result.AutoFixAvailable {
		result.Fix = s.proposeFix(ctx, d, sols, op)
	}

	if s.diagnosisCounter != nil {
		s.diagnosisCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(d.Category)),
			attribute.Bool("auto_fix_available", result.AutoFixAvailable),
		))
	}
	if s.durationHist != nil {
		s.durationHist.Record(ctx, time.Since(start).Seconds())
	}

	s.logger.Info("diagnosis completed",
		zap.String("request_id", requestID),
		zap.String("operation", op.Name),
		zap.String("primary_cause", d.PrimaryCause),
		zap.Float64("confidence", d.Confidence),
		zap.Int("solutions", len(sols)),
		zap.Bool("auto_fix_available", result.AutoFixAvailable),
	)
	span.SetAttributes(attribute.Float64("confidence", d.Confidence))
	return result, nil
}

// proposeFix registers a fix for the best automatable solution and runs
// the side-effect-free preview, so the caller only ever receives a fix
// that has at least reached previewed. Gate refusals are expected and
// leave the result without a fix.
func (s *service) proposeFix(ctx context.Context, d *diagnose.Diagnosis, sols []solution.Solution, op platform.Operation) *autofix.Fix {
	for _, sol := range sols {
		if !sol.AutoFixable() {
			continue
		}
		fix, err := s.fixer.Propose(ctx, d, sol, op)
		if err != nil {
			if errors.Is(err, autofix.ErrNotEligible) || errors.Is(err, autofix.ErrUnknownStrategy) {
				s.logger.Debug("fix not proposed",
					zap.String("diagnosis_id", d.ID),
					zap.String("solution_id", sol.ID),
					zap.Error(err),
				)
				return nil
			}
			s.logger.Warn("fix proposal failed",
				zap.String("diagnosis_id", d.ID),
				zap.Error(err),
			)
			return nil
		}
		if _, err := s.fixer.Preview(ctx, fix.ID); err != nil {
			s.logger.Warn("fix preview failed",
				zap.String("fix_id", fix.ID),
				zap.Error(err),
			)
			return nil
		}
		previewed, err := s.fixer.Get(fix.ID)
		if err != nil {
			return nil
		}
		return &previewed
	}
	return nil
}

// PatternsInfo reports the active corpus version and pattern count.
func (s *service) PatternsInfo() (string, int) {
	return s.library.Version(), s.library.Len()
}

// Close marks the service closed. In-flight requests finish normally.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("pipeline service closed")
	return nil
}
