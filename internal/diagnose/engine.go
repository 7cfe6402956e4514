// Package diagnose fuses pattern matches with enriched context into a
// single root-cause diagnosis.
//
// The engine never aborts: an empty match list yields an unrecognized-error
// diagnosis with zero confidence so downstream stages can still produce
// generic triage guidance.
package diagnose

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/enrich"
	"github.com/halcyonlabs/remedyd/internal/match"
	"github.com/halcyonlabs/remedyd/internal/normalize"
	"github.com/halcyonlabs/remedyd/internal/patterns"
)

const instrumentationName = "github.com/halcyonlabs/remedyd/internal/diagnose"

// PrimaryCauseUnrecognized is the diagnosis for errors matching no pattern.
const PrimaryCauseUnrecognized = "unrecognized-error"

// ContextSignal describes how the enriched context relates to the primary
// cause.
type ContextSignal string

const (
	// SignalCorroborated: an independent context probe confirms the cause.
	SignalCorroborated ContextSignal = "corroborated"
	// SignalContradicted: context points away from the matched cause.
	SignalContradicted ContextSignal = "contradicted"
	// SignalNeutral: context neither confirms nor denies.
	SignalNeutral ContextSignal = "neutral"
)

// Cause is one alternative explanation, ordered by descending plausibility.
type Cause struct {
	Cause     string  `json:"cause"`
	PatternID string  `json:"pattern_id"`
	Score     float64 `json:"score"`
}

// Diagnosis is the fused result of matching and enrichment. Exactly one
// primary cause; alternatives capped and ordered by their own score.
type Diagnosis struct {
	ID                string                  `json:"id"`
	PrimaryCause      string                  `json:"primary_cause"`
	Category          patterns.Category       `json:"category"`
	Confidence        float64                 `json:"confidence"`
	ContextSignal     ContextSignal           `json:"context_signal"`
	AlternativeCauses []Cause                 `json:"alternative_causes,omitempty"`
	SupportingMatch   *match.ErrorMatch       `json:"supporting_match,omitempty"`
	SupportingContext *enrich.EnrichedContext `json:"-"`
}

// Config tunes the context-corroboration adjustments.
type Config struct {
	// CorroborationBoost is added when context independently confirms the
	// matched cause (default: 0.1).
	CorroborationBoost float64
	// ContradictionPenalty is subtracted when context points elsewhere
	// (default: 0.2).
	ContradictionPenalty float64
	// MaxAlternatives caps the alternative-cause list (default: 5).
	MaxAlternatives int
}

// DefaultConfig returns the default adjustment values.
func DefaultConfig() Config {
	return Config{
		CorroborationBoost:   0.1,
		ContradictionPenalty: 0.2,
		MaxAlternatives:      5,
	}
}

// Engine produces diagnoses.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a diagnosis engine. A zero config is replaced with defaults.
func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
}

// scopeRef finds contract/group/account scope identifiers in error text.
var scopeRef = regexp.MustCompile(`(?:ctr_|grp_|aid_)[A-Za-z0-9-]+`)

// Diagnose fuses the ranked matches with enriched context.
func (e *Engine) Diagnose(ctx context.Context, parsed normalize.ParsedError, matches []match.ErrorMatch, ec *enrich.EnrichedContext) *Diagnosis {
	_, span := e.tracer.Start(ctx, "diagnose.fuse")
	defer span.End()

	d := &Diagnosis{
		ID:                uuid.New().String(),
		ContextSignal:     SignalNeutral,
		SupportingContext: ec,
	}

	if len(matches) == 0 {
		d.PrimaryCause = PrimaryCauseUnrecognized
		d.Category = patterns.CategoryUnknown
		d.Confidence = 0
		span.SetAttributes(attribute.Bool("unrecognized", true))
		return d
	}

	top := matches[0]
	d.SupportingMatch = &top
	d.Category = top.Pattern.Category
	d.PrimaryCause = primaryCause(top.Pattern)

	signal := e.corroborate(top.Pattern.Category, parsed, ec)
	d.ContextSignal = signal
	d.Confidence = clamp(adjust(top.Score, signal, e.cfg))

	for _, alt := range matches[1:] {
		if len(d.AlternativeCauses) >= e.cfg.MaxAlternatives {
			break
		}
		d.AlternativeCauses = append(d.AlternativeCauses, Cause{
			Cause:     primaryCause(alt.Pattern),
			PatternID: alt.PatternID,
			Score:     alt.Score,
		})
	}

	e.logger.Debug("diagnosis produced",
		zap.String("diagnosis_id", d.ID),
		zap.String("primary_cause", d.PrimaryCause),
		zap.Float64("confidence", d.Confidence),
		zap.String("context_signal", string(signal)),
	)
	span.SetAttributes(
		attribute.Float64("confidence", d.Confidence),
		attribute.String("category", string(d.Category)),
	)
	return d
}

// corroborate checks whether an independent context probe confirms or
// contradicts the matched category.
func (e *Engine) corroborate(category patterns.Category, parsed normalize.ParsedError, ec *enrich.EnrichedContext) ContextSignal {
	if ec == nil {
		return SignalNeutral
	}

	switch category {
	case patterns.CategoryPermission:
		scope := ReferencedScope(parsed)
		if scope == "" || ec.User.PermissionSnapshot == nil {
			return SignalNeutral
		}
		write, known := ec.User.PermissionSnapshot[scope]
		if !known {
			// The referenced scope is not even visible to the caller, which
			// is itself consistent with a permission failure.
			return SignalCorroborated
		}
		if write {
			// Access is in fact present: the real cause lies elsewhere.
			return SignalContradicted
		}
		return SignalCorroborated

	case patterns.CategoryRateLimit:
		rl := ec.Environment.RateLimit
		if !rl.Known {
			return SignalNeutral
		}
		if rl.Remaining == 0 {
			return SignalCorroborated
		}
		if rl.Limit > 0 && rl.Remaining > rl.Limit/2 {
			return SignalContradicted
		}
		return SignalNeutral

	case patterns.CategoryConflict:
		for _, state := range ec.Resources.ResourceStates {
			switch state {
			case "pending-activation", "locked", "stale":
				return SignalCorroborated
			}
		}
		return SignalNeutral

	default:
		return SignalNeutral
	}
}

// ReferencedScope extracts the first scope identifier mentioned in the
// error text, checking detail before title and immediate sub-errors last.
func ReferencedScope(parsed normalize.ParsedError) string {
	if m := scopeRef.FindString(parsed.Detail); m != "" {
		return m
	}
	if m := scopeRef.FindString(parsed.Title); m != "" {
		return m
	}
	for _, sub := range parsed.SubErrors {
		if m := scopeRef.FindString(sub.Detail); m != "" {
			return m
		}
	}
	return ""
}

func primaryCause(p *patterns.ErrorPattern) string {
	if len(p.KnownCauses) > 0 {
		return p.KnownCauses[0]
	}
	return string(p.Category) + " failure (" + p.ID + ")"
}

func adjust(score float64, signal ContextSignal, cfg Config) float64 {
	switch signal {
	case SignalCorroborated:
		return score + cfg.CorroborationBoost
	case SignalContradicted:
		return score - cfg.ContradictionPenalty
	default:
		return score
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
