package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/remedyd/internal/audit"
	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/enrich"
	"github.com/halcyonlabs/remedyd/internal/match"
	"github.com/halcyonlabs/remedyd/internal/normalize"
	"github.com/halcyonlabs/remedyd/internal/patterns"
	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
)

// fakeClient scripts platform responses by operation name. Permission
// write-checks are answered per scope.
type fakeClient struct {
	mu        sync.Mutex
	scopes    []string
	writable  map[string]bool
	responses map[string]*platform.RawResult
	executed  []platform.Operation
}

func (f *fakeClient) Execute(_ context.Context, op platform.Operation) (*platform.RawResult, error) {
	f.mu.Lock()
	f.executed = append(f.executed, op)
	f.mu.Unlock()
	return &platform.RawResult{Status: 200}, nil
}

func (f *fakeClient) Probe(_ context.Context, op platform.Operation) (*platform.RawResult, error) {
	if op.Name == "permissions.write-check" {
		if f.writable[op.Scope] {
			return &platform.RawResult{Status: 200}, nil
		}
		return &platform.RawResult{Status: 403}, nil
	}
	if res, ok := f.responses[op.Name]; ok {
		return res, nil
	}
	return &platform.RawResult{Status: 200}, nil
}

func (f *fakeClient) ListScopes(context.Context) ([]string, error) {
	return f.scopes, nil
}

func newTestService(t *testing.T, client platform.Client) (Service, *autofix.Engine) {
	t.Helper()

	lib := patterns.Builtin(nil)
	matcher := match.New(match.Config{}, lib)
	enricher, err := enrich.New(enrich.Config{}, client, nil)
	require.NoError(t, err)
	diagnoser := diagnose.New(diagnose.Config{}, nil)
	generator := solution.New(nil)
	fixer := autofix.New(autofix.Config{}, autofix.DefaultStrategies(client, nil), audit.NewMemorySink(), nil)

	svc, err := NewService(lib, matcher, enricher, diagnoser, generator, fixer, nil)
	require.NoError(t, err)
	return svc, fixer
}

func permissionScenarioClient() *fakeClient {
	return &fakeClient{
		scopes:   []string{"ctr_ABC", "ctr_XYZ"},
		writable: map[string]bool{"ctr_XYZ": true},
		responses: map[string]*platform.RawResult{
			"ratelimit.status": {Status: 200, Body: map[string]any{"limit": float64(120), "remaining": float64(80)}},
		},
	}
}

const permissionErrorJSON = `{
	"type": "https://problems.example.net/property-manager/v1/insufficient_permissions",
	"title": "Forbidden: not authorized to modify the property",
	"detail": "credential cannot modify contract ctr_ABC",
	"status": 403
}`

func TestDiagnoseAndRepairPermissionScenario(t *testing.T) {
	svc, _ := newTestService(t, permissionScenarioClient())
	op := platform.Operation{Name: "properties.update", Scope: "ctr_ABC"}

	res, err := svc.DiagnoseAndRepair(context.Background(), []byte(permissionErrorJSON), op, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, "property-manager", res.Parsed.Service)
	assert.Equal(t, 403, res.Parsed.HTTPStatus)
	assert.Equal(t, "insufficient_permissions", res.Parsed.ErrorType)

	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "pm-403-insufficient-permissions", res.Matches[0].PatternID)

	require.NotNil(t, res.Diagnosis)
	assert.Equal(t, patterns.CategoryPermission, res.Diagnosis.Category)
	assert.Equal(t, diagnose.SignalCorroborated, res.Diagnosis.ContextSignal)
	assert.GreaterOrEqual(t, res.Diagnosis.Confidence, 0.9)
	assert.Contains(t, res.Diagnosis.PrimaryCause, "contract")

	require.NotEmpty(t, res.Solutions)
	first := res.Solutions[0]
	assert.Equal(t, "switch-accessible-scope", first.ID)
	assert.Equal(t, solution.Feasible, first.Feasibility)
	assert.Contains(t, first.Steps[1].Description, "ctr_XYZ")

	assert.True(t, res.AutoFixAvailable)
	assert.Nil(t, res.Fix)
}

func TestDiagnoseAndRepairProposesFixWhenRequested(t *testing.T) {
	svc, fixer := newTestService(t, permissionScenarioClient())
	op := platform.Operation{Name: "properties.update", Scope: "ctr_ABC"}

	res, err := svc.DiagnoseAndRepair(context.Background(), []byte(permissionErrorJSON), op, Options{AutoFix: true})
	require.NoError(t, err)

	// The returned fix has already been previewed, so the caller holds a
	// plan and rollback snapshot before deciding on approval.
	require.NotNil(t, res.Fix)
	assert.Equal(t, autofix.StatePreviewed, res.Fix.State)
	assert.Equal(t, solution.StrategySwitchScope, res.Fix.Strategy)
	require.NotNil(t, res.Fix.Plan)

	// Previews of the fix are byte-identical across calls.
	first, err := fixer.Preview(context.Background(), res.Fix.ID)
	require.NoError(t, err)
	second, err := fixer.Preview(context.Background(), res.Fix.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), "ctr_XYZ")
}

func TestDiagnoseAndRepairRateLimitScenario(t *testing.T) {
	client := &fakeClient{
		scopes:   []string{"ctr_ABC"},
		writable: map[string]bool{"ctr_ABC": true},
		responses: map[string]*platform.RawResult{
			"ratelimit.status": {Status: 200, Body: map[string]any{
				"limit":               float64(120),
				"remaining":           float64(0),
				"reset_after_seconds": float64(30),
			}},
		},
	}
	svc, _ := newTestService(t, client)

	raw := `{
		"errorString": "rate limit exceeded, retry later",
		"errorCode": "rate_limit_exceeded",
		"title": "Too many requests",
		"statusCode": 429,
		"api": "property-manager"
	}`
	op := platform.Operation{Name: "properties.list", Scope: "ctr_ABC"}

	res, err := svc.DiagnoseAndRepair(context.Background(), []byte(raw), op, Options{})
	require.NoError(t, err)

	assert.Equal(t, normalize.ShapeLegacy, res.Parsed.RawShape)
	require.NotNil(t, res.Diagnosis)
	assert.Equal(t, patterns.CategoryRateLimit, res.Diagnosis.Category)
	assert.Equal(t, diagnose.SignalCorroborated, res.Diagnosis.ContextSignal)

	require.NotEmpty(t, res.Solutions)
	assert.Equal(t, "backoff-retry", res.Solutions[0].ID)
	assert.Equal(t, solution.Feasible, res.Solutions[0].Feasibility)
	assert.Contains(t, res.Solutions[0].Steps[0].Description, "30s")
}

func TestDiagnoseAndRepairUnparseableInputStillStructured(t *testing.T) {
	svc, _ := newTestService(t, permissionScenarioClient())
	op := platform.Operation{Name: "properties.update", Scope: "ctr_ABC"}

	res, err := svc.DiagnoseAndRepair(context.Background(), []byte("socket closed unexpectedly"), op, Options{AutoFix: true})
	require.NoError(t, err)

	assert.Empty(t, res.Matches)
	require.NotNil(t, res.Diagnosis)
	assert.Equal(t, diagnose.PrimaryCauseUnrecognized, res.Diagnosis.PrimaryCause)
	assert.Zero(t, res.Diagnosis.Confidence)

	require.Len(t, res.Solutions, 1)
	assert.Equal(t, solution.GenericTriageID, res.Solutions[0].ID)
	assert.Equal(t, solution.Infeasible, res.Solutions[0].Feasibility)
	assert.False(t, res.AutoFixAvailable)
	assert.Nil(t, res.Fix)
}

func TestDiagnoseAndRepairRepeatedFailureFlagged(t *testing.T) {
	svc, _ := newTestService(t, permissionScenarioClient())
	op := platform.Operation{Name: "properties.update", Scope: "ctr_ABC"}

	var res *Result
	var err error
	for i := 0; i < 3; i++ {
		res, err = svc.DiagnoseAndRepair(context.Background(), []byte(permissionErrorJSON), op, Options{})
		require.NoError(t, err)
	}

	require.NotNil(t, res.Context)
	assert.True(t, res.Context.RepeatedFailure)
}

func TestServiceClosed(t *testing.T) {
	svc, _ := newTestService(t, permissionScenarioClient())
	require.NoError(t, svc.Close())

	_, err := svc.DiagnoseAndRepair(context.Background(), []byte(`{}`), platform.Operation{}, Options{})
	assert.ErrorIs(t, err, ErrServiceClosed)

	// Closing twice is fine.
	assert.NoError(t, svc.Close())
}
