package autofix

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
)

// defaultBackoff is used when the rate-limit probe did not report a reset
// window.
const defaultBackoff = 60 * time.Second

// DefaultStrategies returns the built-in strategy set wired to the given
// platform client.
func DefaultStrategies(client platform.Client, logger *zap.Logger) []Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return []Strategy{
		&switchScopeStrategy{client: client, logger: logger},
		&backoffRetryStrategy{client: client, logger: logger},
		&refreshVersionStrategy{client: client, logger: logger},
		&relistStrategy{client: client, logger: logger},
	}
}

func verifyOperation(ctx context.Context, client platform.Client, op platform.Operation) error {
	res, err := client.Probe(ctx, op)
	if err != nil {
		return fmt.Errorf("verification probe: %w", err)
	}
	if res.Status >= 400 {
		return fmt.Errorf("verification probe returned status %d", res.Status)
	}
	return nil
}

// switchScopeStrategy re-issues the failed operation under a scope the
// credential can actually write to. Re-issuing creates resources that
// cannot be generically undone, so the fix declares itself not
// rollbackable.
type switchScopeStrategy struct {
	client platform.Client
	logger *zap.Logger
}

func (s *switchScopeStrategy) Name() string { return solution.StrategySwitchScope }

// targetScope picks the first writable scope that differs from the one the
// operation failed under.
func (s *switchScopeStrategy) targetScope(in Input) (string, error) {
	if in.Diagnosis == nil || in.Diagnosis.SupportingContext == nil {
		return "", fmt.Errorf("no permission snapshot available")
	}
	user := in.Diagnosis.SupportingContext.User
	for _, scope := range user.AvailableScopes {
		if scope == in.Operation.Scope {
			continue
		}
		if user.PermissionSnapshot[scope] {
			return scope, nil
		}
	}
	return "", fmt.Errorf("no writable alternative scope for %q", in.Operation.Scope)
}

func (s *switchScopeStrategy) Plan(_ context.Context, in Input) (*Plan, error) {
	target, err := s.targetScope(in)
	if err != nil {
		return nil, err
	}
	op := in.Operation
	op.Scope = target
	return &Plan{
		Summary: fmt.Sprintf("re-issue %s under scope %s", op.Name, target),
		Actions: []PlannedAction{
			{Description: fmt.Sprintf("execute %s with scope %s", op.Name, target), Operation: op},
		},
	}, nil
}

func (s *switchScopeStrategy) CaptureRollback(context.Context, Input) (*RollbackPlan, error) {
	return nil, nil
}

func (s *switchScopeStrategy) Apply(ctx context.Context, _ Input, plan *Plan) error {
	for _, action := range plan.Actions {
		if _, err := s.client.Execute(ctx, action.Operation); err != nil {
			return fmt.Errorf("apply %s: %w", action.Operation.Name, err)
		}
	}
	return nil
}

func (s *switchScopeStrategy) Verify(ctx context.Context, in Input) error {
	target, err := s.targetScope(in)
	if err != nil {
		return err
	}
	op := in.Operation
	op.Scope = target
	return verifyOperation(ctx, s.client, op)
}

func (s *switchScopeStrategy) Rollback(context.Context, Input, *RollbackPlan) error {
	return fmt.Errorf("scope switch is not rollbackable")
}

// backoffRetryStrategy waits out the rate-limit window and retries the
// original operation unchanged.
type backoffRetryStrategy struct {
	client platform.Client
	logger *zap.Logger
}

func (s *backoffRetryStrategy) Name() string { return solution.StrategyBackoffRetry }

func (s *backoffRetryStrategy) wait(in Input) time.Duration {
	if in.Diagnosis != nil && in.Diagnosis.SupportingContext != nil {
		if ra := in.Diagnosis.SupportingContext.Environment.RateLimit.ResetAfter; ra > 0 {
			return ra
		}
	}
	return defaultBackoff
}

func (s *backoffRetryStrategy) Plan(_ context.Context, in Input) (*Plan, error) {
	wait := s.wait(in)
	return &Plan{
		Summary: fmt.Sprintf("wait %s, then retry %s", wait, in.Operation.Name),
		Actions: []PlannedAction{
			{Description: fmt.Sprintf("retry %s after %s", in.Operation.Name, wait), Operation: in.Operation},
		},
	}, nil
}

func (s *backoffRetryStrategy) CaptureRollback(context.Context, Input) (*RollbackPlan, error) {
	return nil, nil
}

func (s *backoffRetryStrategy) Apply(ctx context.Context, in Input, plan *Plan) error {
	wait := s.wait(in)
	s.logger.Debug("waiting for rate-limit reset", zap.Duration("wait", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	for _, action := range plan.Actions {
		if _, err := s.client.Execute(ctx, action.Operation); err != nil {
			return fmt.Errorf("retry %s: %w", action.Operation.Name, err)
		}
	}
	return nil
}

func (s *backoffRetryStrategy) Verify(ctx context.Context, in Input) error {
	return verifyOperation(ctx, s.client, in.Operation)
}

func (s *backoffRetryStrategy) Rollback(context.Context, Input, *RollbackPlan) error {
	return fmt.Errorf("retry is not rollbackable")
}

// refreshVersionStrategy rebases a conflicting edit onto the latest
// resource version. The previously active version is captured first so the
// fix can be rolled back by restoring it.
type refreshVersionStrategy struct {
	client platform.Client
	logger *zap.Logger
}

func (s *refreshVersionStrategy) Name() string { return solution.StrategyRefreshVersion }

func (s *refreshVersionStrategy) Plan(_ context.Context, in Input) (*Plan, error) {
	latest := platform.Operation{Name: "versions.latest", Params: in.Operation.Params, Scope: in.Operation.Scope}
	return &Plan{
		Summary: fmt.Sprintf("rebase %s onto the latest resource version", in.Operation.Name),
		Actions: []PlannedAction{
			{Description: "fetch the latest resource version", Operation: latest},
			{Description: fmt.Sprintf("re-issue %s against the latest version", in.Operation.Name), Operation: in.Operation},
		},
	}, nil
}

func (s *refreshVersionStrategy) CaptureRollback(ctx context.Context, in Input) (*RollbackPlan, error) {
	res, err := s.client.Probe(ctx, platform.Operation{Name: "versions.current", Params: in.Operation.Params, Scope: in.Operation.Scope})
	if err != nil {
		return nil, fmt.Errorf("capture current version: %w", err)
	}
	version := ""
	if body, ok := res.Body.(map[string]any); ok {
		if v, ok := body["version"].(string); ok {
			version = v
		}
	}
	if version == "" {
		return nil, fmt.Errorf("current version not reported")
	}

	restore := platform.Operation{
		Name:   "versions.restore",
		Params: map[string]any{"version": version},
		Scope:  in.Operation.Scope,
	}
	return &RollbackPlan{
		Summary:  fmt.Sprintf("restore version %s", version),
		Actions:  []PlannedAction{{Description: "restore the previously active version", Operation: restore}},
		Snapshot: map[string]any{"version": version},
	}, nil
}

func (s *refreshVersionStrategy) Apply(ctx context.Context, in Input, plan *Plan) error {
	latest, err := s.client.Execute(ctx, plan.Actions[0].Operation)
	if err != nil {
		return fmt.Errorf("fetch latest version: %w", err)
	}

	op := in.Operation
	op.Params = cloneParams(op.Params)
	if body, ok := latest.Body.(map[string]any); ok {
		if v, ok := body["version"].(string); ok {
			op.Params["version"] = v
		}
	}

	if _, err := s.client.Execute(ctx, op); err != nil {
		return fmt.Errorf("re-issue %s: %w", op.Name, err)
	}
	return nil
}

func (s *refreshVersionStrategy) Verify(ctx context.Context, in Input) error {
	return verifyOperation(ctx, s.client, in.Operation)
}

func (s *refreshVersionStrategy) Rollback(ctx context.Context, _ Input, rb *RollbackPlan) error {
	for _, action := range rb.Actions {
		if _, err := s.client.Execute(ctx, action.Operation); err != nil {
			return fmt.Errorf("rollback %s: %w", action.Operation.Name, err)
		}
	}
	return nil
}

// relistStrategy refreshes stale resource identifiers by re-listing the
// enclosing scope before retrying.
type relistStrategy struct {
	client platform.Client
	logger *zap.Logger
}

func (s *relistStrategy) Name() string { return solution.StrategyRelist }

func (s *relistStrategy) Plan(_ context.Context, in Input) (*Plan, error) {
	list := platform.Operation{Name: "resources.list", Scope: in.Operation.Scope}
	return &Plan{
		Summary: fmt.Sprintf("refresh identifiers, then retry %s", in.Operation.Name),
		Actions: []PlannedAction{
			{Description: "re-list resources in the enclosing scope", Operation: list},
			{Description: fmt.Sprintf("retry %s with refreshed identifiers", in.Operation.Name), Operation: in.Operation},
		},
	}, nil
}

func (s *relistStrategy) CaptureRollback(context.Context, Input) (*RollbackPlan, error) {
	return nil, nil
}

func (s *relistStrategy) Apply(ctx context.Context, in Input, plan *Plan) error {
	listed, err := s.client.Execute(ctx, plan.Actions[0].Operation)
	if err != nil {
		return fmt.Errorf("re-list resources: %w", err)
	}

	op := in.Operation
	op.Params = cloneParams(op.Params)
	if body, ok := listed.Body.(map[string]any); ok {
		if entities, ok := body["entities"].([]any); ok && len(entities) > 0 {
			if id, ok := entities[0].(string); ok && op.Params["id"] != nil {
				op.Params["id"] = id
			}
		}
	}

	if _, err := s.client.Execute(ctx, op); err != nil {
		return fmt.Errorf("retry %s: %w", op.Name, err)
	}
	return nil
}

func (s *relistStrategy) Verify(ctx context.Context, in Input) error {
	return verifyOperation(ctx, s.client, in.Operation)
}

func (s *relistStrategy) Rollback(context.Context, Input, *RollbackPlan) error {
	return fmt.Errorf("relist retry is not rollbackable")
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}
