// Package autofix executes approved fixes against the platform with
// preview, approval gating, at-most-once execution, verification, and
// single-attempt rollback.
package autofix

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halcyonlabs/remedyd/internal/audit"
	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
)

const instrumentationName = "github.com/halcyonlabs/remedyd/internal/autofix"

// Config tunes the fix engine gates.
type Config struct {
	// ConfidenceGate is the minimum diagnosis confidence for automation
	// (default: 0.8).
	ConfidenceGate float64
	// VerifyTimeout bounds post-apply verification; on expiry the fix is
	// rolled back (default: 30s).
	VerifyTimeout time.Duration
	// AutoApprove lets rollbackable fixes execute without an explicit
	// approval. Fixes without a rollback plan always require approval.
	AutoApprove bool
	// ScopeRate and ScopeBurst bound fix executions per caller scope
	// (default: 1 per minute, burst 3).
	ScopeRate  rate.Limit
	ScopeBurst int
}

// DefaultConfig returns the default gate values.
func DefaultConfig() Config {
	return Config{
		ConfidenceGate: 0.8,
		VerifyTimeout:  30 * time.Second,
		AutoApprove:    false,
		ScopeRate:      rate.Every(time.Minute),
		ScopeBurst:     3,
	}
}

// Engine tracks fixes across calls and drives their lifecycle. All state
// transitions happen under the engine mutex, which is what makes execution
// at-most-once: concurrent executors race on the transition to executing
// and exactly one wins.
type Engine struct {
	cfg        Config
	strategies map[string]Strategy
	sink       audit.Sink
	logger     *zap.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	fixes    map[string]*Fix
	limiters map[string]*rate.Limiter

	now func() time.Time
}

// New creates a fix engine. A zero config is replaced with defaults; a nil
// sink disables auditing.
func New(cfg Config, strategies []Strategy, sink audit.Sink, logger *zap.Logger) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &Engine{
		cfg:        cfg,
		strategies: byName,
		sink:       sink,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		fixes:      make(map[string]*Fix),
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
	}
}

// Propose registers a fix for the diagnosis if it passes the automation
// gate: confidence at or above the gate and a solution the engine can
// execute without manual input.
func (e *Engine) Propose(ctx context.Context, d *diagnose.Diagnosis, sol solution.Solution, op platform.Operation) (Fix, error) {
	ctx, span := e.tracer.Start(ctx, "autofix.propose")
	defer span.End()

	if d == nil || d.Confidence < e.cfg.ConfidenceGate {
		return Fix{}, fmt.Errorf("%w: confidence below %.2f", ErrNotEligible, e.cfg.ConfidenceGate)
	}
	if !sol.AutoFixable() {
		return Fix{}, fmt.Errorf("%w: solution %s is manual", ErrNotEligible, sol.ID)
	}
	if _, ok := e.strategies[sol.FixStrategy]; !ok {
		return Fix{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, sol.FixStrategy)
	}

	now := e.now()
	fix := &Fix{
		ID:          uuid.New().String(),
		DiagnosisID: d.ID,
		Strategy:    sol.FixStrategy,
		State:       StateProposed,
		Scope:       op.Scope,
		Input:       Input{Operation: op, Diagnosis: d, Solution: sol},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.mu.Lock()
	e.fixes[fix.ID] = fix
	snapshot := *fix
	e.mu.Unlock()

	span.SetAttributes(attribute.String("fix.id", fix.ID), attribute.String("fix.strategy", fix.Strategy))
	e.record(ctx, audit.KindFixProposed, snapshot, nil)
	return snapshot, nil
}

// Preview renders the fix plan. The first call plans the actions and
// captures the rollback snapshot; every call returns byte-identical output.
func (e *Engine) Preview(ctx context.Context, fixID string) ([]byte, error) {
	ctx, span := e.tracer.Start(ctx, "autofix.preview")
	defer span.End()

	e.mu.Lock()
	fix, ok := e.fixes[fixID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrFixNotFound, fixID)
	}
	if fix.preview != nil {
		out := append([]byte(nil), fix.preview...)
		e.mu.Unlock()
		return out, nil
	}
	if fix.State != StateProposed {
		state := fix.State
		e.mu.Unlock()
		return nil, &InvalidTransitionError{FixID: fixID, From: state, To: StatePreviewed}
	}
	strategy := e.strategies[fix.Strategy]
	in := fix.Input
	e.mu.Unlock()

	plan, err := strategy.Plan(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("plan fix: %w", err)
	}
	rollback, err := strategy.CaptureRollback(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("capture rollback: %w", err)
	}

	rendered, err := renderPreview(fix.ID, fix.Strategy, plan, rollback)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	// Lost a race with another preview call: serve its bytes instead.
	if fix.preview != nil {
		rendered = append([]byte(nil), fix.preview...)
		e.mu.Unlock()
		return rendered, nil
	}
	if fix.State != StateProposed {
		state := fix.State
		e.mu.Unlock()
		return nil, &InvalidTransitionError{FixID: fixID, From: state, To: StatePreviewed}
	}
	fix.Plan = plan
	fix.Rollback = rollback
	fix.preview = rendered
	fix.State = StatePreviewed
	fix.UpdatedAt = e.now()
	snapshot := *fix
	e.mu.Unlock()

	e.record(ctx, audit.KindFixPreviewed, snapshot, map[string]any{"rollbackable": rollback != nil})
	return append([]byte(nil), rendered...), nil
}

// Approve marks a previewed fix as approved by the named actor.
func (e *Engine) Approve(ctx context.Context, fixID, actor string) (Fix, error) {
	e.mu.Lock()
	fix, ok := e.fixes[fixID]
	if !ok {
		e.mu.Unlock()
		return Fix{}, fmt.Errorf("%w: %s", ErrFixNotFound, fixID)
	}
	if fix.State != StatePreviewed {
		state := fix.State
		e.mu.Unlock()
		return Fix{}, &InvalidTransitionError{FixID: fixID, From: state, To: StateApproved}
	}
	fix.State = StateApproved
	fix.ApprovedBy = actor
	fix.UpdatedAt = e.now()
	snapshot := *fix
	e.mu.Unlock()

	e.record(ctx, audit.KindFixApproved, snapshot, map[string]any{"actor": actor})
	return snapshot, nil
}

// Reject terminates a fix before execution.
func (e *Engine) Reject(ctx context.Context, fixID, actor, reason string) (Fix, error) {
	e.mu.Lock()
	fix, ok := e.fixes[fixID]
	if !ok {
		e.mu.Unlock()
		return Fix{}, fmt.Errorf("%w: %s", ErrFixNotFound, fixID)
	}
	if fix.State.terminal() || fix.State == StateExecuting {
		state := fix.State
		e.mu.Unlock()
		return Fix{}, &InvalidTransitionError{FixID: fixID, From: state, To: StateRejected}
	}
	fix.State = StateRejected
	fix.Error = reason
	fix.UpdatedAt = e.now()
	snapshot := *fix
	e.mu.Unlock()

	e.record(ctx, audit.KindFixRejected, snapshot, map[string]any{"actor": actor, "reason": reason})
	return snapshot, nil
}

// Execute runs an approved fix: apply, verify within the timeout, and on
// any failure roll back once. Exactly one Execute call per fix ever runs;
// later and concurrent calls fail the transition guard.
func (e *Engine) Execute(ctx context.Context, fixID string) (Fix, error) {
	ctx, span := e.tracer.Start(ctx, "autofix.execute")
	defer span.End()

	e.mu.Lock()
	fix, ok := e.fixes[fixID]
	if !ok {
		e.mu.Unlock()
		return Fix{}, fmt.Errorf("%w: %s", ErrFixNotFound, fixID)
	}
	switch fix.State {
	case StateApproved:
	case StatePreviewed:
		if !e.cfg.AutoApprove || fix.Rollback == nil {
			e.mu.Unlock()
			return Fix{}, ErrApprovalRequired
		}
	default:
		state := fix.State
		e.mu.Unlock()
		return Fix{}, &InvalidTransitionError{FixID: fixID, From: state, To: StateExecuting}
	}
	if !e.limiterLocked(fix.Scope).Allow() {
		e.mu.Unlock()
		return Fix{}, fmt.Errorf("%w: %s", ErrRateLimited, fix.Scope)
	}
	fix.State = StateExecuting
	fix.UpdatedAt = e.now()
	executing := *fix
	strategy := e.strategies[fix.Strategy]
	in := fix.Input
	plan := fix.Plan
	rollback := fix.Rollback
	e.mu.Unlock()

	span.SetAttributes(attribute.String("fix.id", fixID), attribute.String("fix.strategy", fix.Strategy))

	// Once the mutating step starts, caller cancellation is not honored
	// until apply, verification, and any rollback complete. A disconnecting
	// caller must never strand a half-applied fix.
	ctx = context.WithoutCancel(ctx)
	e.record(ctx, audit.KindFixExecuting, executing, nil)

	if err := strategy.Apply(ctx, in, plan); err != nil {
		return e.fail(ctx, fix, strategy, in, rollback, fmt.Errorf("apply: %w", err))
	}

	vctx, cancel := context.WithTimeout(ctx, e.cfg.VerifyTimeout)
	err := strategy.Verify(vctx, in)
	cancel()
	if err != nil {
		return e.fail(ctx, fix, strategy, in, rollback, fmt.Errorf("verify: %w", err))
	}

	e.mu.Lock()
	fix.State = StateSucceeded
	fix.UpdatedAt = e.now()
	snapshot := *fix
	e.mu.Unlock()

	e.record(ctx, audit.KindFixSucceeded, snapshot, nil)
	return snapshot, nil
}

// fail settles an executing fix after an apply or verify error. Rollback
// is attempted exactly once when a plan exists; a rollback failure is
// final, never retried.
func (e *Engine) fail(ctx context.Context, fix *Fix, strategy Strategy, in Input, rollback *RollbackPlan, cause error) (Fix, error) {
	finalState := StateFailed
	errText := cause.Error()

	if rollback != nil {
		if rbErr := strategy.Rollback(ctx, in, rollback); rbErr != nil {
			errText = fmt.Sprintf("%s; rollback: %s", errText, rbErr)
			e.logger.Error("fix rollback failed",
				zap.String("fix_id", fix.ID),
				zap.Error(rbErr),
			)
		} else {
			finalState = StateRolledBack
		}
	}

	e.mu.Lock()
	fix.State = finalState
	fix.Error = errText
	fix.UpdatedAt = e.now()
	snapshot := *fix
	e.mu.Unlock()

	kind := audit.KindFixFailed
	if finalState == StateRolledBack {
		kind = audit.KindFixRolledBack
	}
	e.record(ctx, kind, snapshot, map[string]any{"error": errText})
	return snapshot, cause
}

// Get returns a snapshot of the fix.
func (e *Engine) Get(fixID string) (Fix, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fix, ok := e.fixes[fixID]
	if !ok {
		return Fix{}, fmt.Errorf("%w: %s", ErrFixNotFound, fixID)
	}
	return *fix, nil
}

// List returns snapshots of every tracked fix.
func (e *Engine) List() []Fix {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Fix, 0, len(e.fixes))
	for _, fix := range e.fixes {
		out = append(out, *fix)
	}
	return out
}

// limiterLocked returns the per-scope limiter. Callers must hold e.mu.
func (e *Engine) limiterLocked(scope string) *rate.Limiter {
	lim, ok := e.limiters[scope]
	if !ok {
		lim = rate.NewLimiter(e.cfg.ScopeRate, e.cfg.ScopeBurst)
		e.limiters[scope] = lim
	}
	return lim
}

// record writes an audit event from a snapshot taken under the engine
// mutex, so a concurrent transition on the shared fix cannot race the
// event fields. Sink failures are logged and swallowed so auditing can
// never fail a fix.
func (e *Engine) record(ctx context.Context, kind audit.Kind, fix Fix, detail map[string]any) {
	if e.sink == nil {
		return
	}
	ev := audit.Event{
		ID:          uuid.New().String(),
		Time:        e.now(),
		Kind:        kind,
		FixID:       fix.ID,
		DiagnosisID: fix.DiagnosisID,
		Strategy:    fix.Strategy,
		Actor:       fix.ApprovedBy,
		Detail:      detail,
	}
	if err := e.sink.Record(ctx, ev); err != nil {
		e.logger.Warn("audit record failed",
			zap.String("fix_id", fix.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func renderPreview(fixID, strategy string, plan *Plan, rollback *RollbackPlan) ([]byte, error) {
	doc := struct {
		FixID    string        `json:"fix_id"`
		Strategy string        `json:"strategy"`
		Plan     *Plan         `json:"plan"`
		Rollback *RollbackPlan `json:"rollback,omitempty"`
	}{FixID: fixID, Strategy: strategy, Plan: plan, Rollback: rollback}

	rendered, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	return rendered, nil
}
