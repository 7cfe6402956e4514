package autofix

import (
	"errors"
	"fmt"
	"time"

	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
)

// State is a fix's position in its lifecycle. Transitions are linear and
// guarded; a fix never moves backwards.
type State string

const (
	StateProposed   State = "proposed"
	StatePreviewed  State = "previewed"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateExecuting  State = "executing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateRolledBack State = "rolled_back"
)

// terminal reports whether no further transition is allowed.
func (s State) terminal() bool {
	switch s {
	case StateRejected, StateSucceeded, StateFailed, StateRolledBack:
		return true
	}
	return false
}

var (
	// ErrFixNotFound: the fix ID is unknown to this engine instance.
	ErrFixNotFound = errors.New("fix not found")
	// ErrNotEligible: the diagnosis or solution does not meet the
	// automation gate.
	ErrNotEligible = errors.New("fix not eligible for automation")
	// ErrApprovalRequired: execution was requested without approval.
	ErrApprovalRequired = errors.New("fix requires approval before execution")
	// ErrRateLimited: the caller scope exhausted its fix budget.
	ErrRateLimited = errors.New("fix rate limit exceeded for scope")
	// ErrUnknownStrategy: the solution names a strategy the engine does
	// not carry.
	ErrUnknownStrategy = errors.New("unknown fix strategy")
)

// InvalidTransitionError reports a rejected state change. Concurrent
// executors lose the transition race with this error, which is how
// at-most-once execution is enforced.
type InvalidTransitionError struct {
	FixID string
	From  State
	To    State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("fix %s: invalid transition %s -> %s", e.FixID, e.From, e.To)
}

// Input carries everything a strategy needs to plan and execute.
type Input struct {
	Operation platform.Operation  `json:"operation"`
	Diagnosis *diagnose.Diagnosis `json:"-"`
	Solution  solution.Solution   `json:"solution"`
}

// PlannedAction is one concrete platform call a fix will make.
type PlannedAction struct {
	Description string             `json:"description"`
	Operation   platform.Operation `json:"operation"`
}

// Plan is the full set of actions a fix will take, rendered before any of
// them run.
type Plan struct {
	Summary string          `json:"summary"`
	Actions []PlannedAction `json:"actions"`
}

// RollbackPlan captures the state needed to undo a fix. A nil rollback
// plan means the fix cannot be undone and approval is always mandatory.
type RollbackPlan struct {
	Summary string          `json:"summary"`
	Actions []PlannedAction `json:"actions"`
	// Snapshot holds strategy-private restore data.
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// Fix is one tracked fix attempt. Fields are owned by the engine and must
// only be read through engine accessors.
type Fix struct {
	ID          string `json:"id"`
	DiagnosisID string `json:"diagnosis_id"`
	Strategy    string `json:"strategy"`
	State       State  `json:"state"`
	Scope       string `json:"scope"`

	Input    Input         `json:"input"`
	Plan     *Plan         `json:"plan,omitempty"`
	Rollback *RollbackPlan `json:"rollback,omitempty"`

	ApprovedBy string `json:"approved_by,omitempty"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// preview is rendered once and served byte-identical on every
	// subsequent preview call.
	preview []byte
}
