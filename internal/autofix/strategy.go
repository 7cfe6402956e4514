package autofix

import "context"

// Strategy implements one automated fix. Implementations must be stateless:
// everything an attempt needs arrives in the Input, everything it captures
// goes into the returned plans.
type Strategy interface {
	// Name matches solution.Solution.FixStrategy.
	Name() string

	// Plan renders the actions the fix would take, without side effects.
	Plan(ctx context.Context, in Input) (*Plan, error)

	// CaptureRollback snapshots state needed to undo the fix. Returning
	// (nil, nil) declares the fix not rollbackable.
	CaptureRollback(ctx context.Context, in Input) (*RollbackPlan, error)

	// Apply executes the planned actions.
	Apply(ctx context.Context, in Input, plan *Plan) error

	// Verify confirms the original failure no longer reproduces.
	Verify(ctx context.Context, in Input) error

	// Rollback undoes an applied fix using the captured plan. It is never
	// called with a nil plan and is never retried.
	Rollback(ctx context.Context, in Input, rb *RollbackPlan) error
}
