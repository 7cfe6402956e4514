// Package solution turns a diagnosis into ranked, personalized remediation
// paths. Solutions are rendered from a template registry keyed by the
// solution IDs that matched patterns reference, then personalized against
// the enriched context and ordered by feasibility and estimated success.
package solution

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/enrich"
	"github.com/halcyonlabs/remedyd/internal/normalize"
)

const instrumentationName = "github.com/halcyonlabs/remedyd/internal/solution"

// Generator renders solutions for diagnoses.
type Generator struct {
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a solution generator.
func New(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
}

// Generate returns at least one solution for every diagnosis. Unrecognized
// diagnoses get the generic triage path.
func (g *Generator) Generate(ctx context.Context, d *diagnose.Diagnosis, parsed normalize.ParsedError, ec *enrich.EnrichedContext) []Solution {
	_, span := g.tracer.Start(ctx, "solution.generate")
	defer span.End()

	in := renderInput{
		parsed:          parsed,
		ec:              ec,
		referencedScope: diagnose.ReferencedScope(parsed),
	}

	var ids []string
	if d != nil && d.SupportingMatch != nil && d.SupportingMatch.Pattern != nil {
		ids = d.SupportingMatch.Pattern.SolutionIDs
	}

	seen := make(map[string]bool, len(ids))
	var out []Solution
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		render, ok := templateRegistry[id]
		if !ok {
			g.logger.Warn("pattern references unknown solution id", zap.String("solution_id", id))
			continue
		}
		out = append(out, render(in))
	}

	if len(out) == 0 {
		out = append(out, renderGenericTriage(in))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Feasibility.rank() != out[j].Feasibility.rank() {
			return out[i].Feasibility.rank() < out[j].Feasibility.rank()
		}
		return out[i].SuccessRateEstimate > out[j].SuccessRateEstimate
	})

	span.SetAttributes(attribute.Int("solutions", len(out)))
	return out
}
