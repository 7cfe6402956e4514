package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/audit"
	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/diagnose"
	"github.com/halcyonlabs/remedyd/internal/normalize"
	"github.com/halcyonlabs/remedyd/internal/patterns"
	"github.com/halcyonlabs/remedyd/internal/pipeline"
	"github.com/halcyonlabs/remedyd/internal/platform"
	"github.com/halcyonlabs/remedyd/internal/solution"
)

// stubService is a canned pipeline.Service for handler tests.
type stubService struct {
	result *pipeline.Result
	err    error
}

func (s *stubService) DiagnoseAndRepair(_ context.Context, _ []byte, _ platform.Operation, _ pipeline.Options) (*pipeline.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubService) PatternsInfo() (string, int) { return "2026.08.1", 42 }

func (s *stubService) Close() error { return nil }

// stubStrategy is a no-op rollbackable strategy.
type stubStrategy struct{}

func (stubStrategy) Name() string { return "switch-scope" }

func (stubStrategy) Plan(_ context.Context, in autofix.Input) (*autofix.Plan, error) {
	return &autofix.Plan{
		Summary: "re-issue under ctr_XYZ",
		Actions: []autofix.PlannedAction{{Description: "retry", Operation: in.Operation}},
	}, nil
}

func (stubStrategy) CaptureRollback(_ context.Context, _ autofix.Input) (*autofix.RollbackPlan, error) {
	return &autofix.RollbackPlan{Summary: "no state changed"}, nil
}

func (stubStrategy) Apply(_ context.Context, _ autofix.Input, _ *autofix.Plan) error { return nil }

func (stubStrategy) Verify(_ context.Context, _ autofix.Input) error { return nil }

func (stubStrategy) Rollback(_ context.Context, _ autofix.Input, _ *autofix.RollbackPlan) error {
	return nil
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		RequestID: "req-1",
		Parsed:    normalize.ParsedError{HTTPStatus: 403, ErrorType: "insufficient_permissions"},
		Diagnosis: &diagnose.Diagnosis{
			ID:           "diag-1",
			PrimaryCause: "credential lacks write access to the referenced contract",
			Category:     patterns.CategoryPermission,
			Confidence:   0.9,
		},
		Solutions: []solution.Solution{{
			ID:          "switch-accessible-scope",
			Title:       "Switch to a writable scope",
			Feasibility: solution.Feasible,
			FixStrategy: "switch-scope",
		}},
		AutoFixAvailable: true,
	}
}

func newTestServer(t *testing.T, svc pipeline.Service) (*Server, *autofix.Engine) {
	t.Helper()
	fixer := autofix.New(autofix.DefaultConfig(), []autofix.Strategy{stubStrategy{}}, audit.NewMemorySink(), zap.NewNop())
	server, err := NewServer(svc, fixer, zap.NewNop(), nil)
	require.NoError(t, err)
	return server, fixer
}

// proposeFix seeds the engine with one proposed fix and returns its ID.
func proposeFix(t *testing.T, fixer *autofix.Engine) string {
	t.Helper()
	result := testResult()
	fix, err := fixer.Propose(context.Background(), result.Diagnosis, result.Solutions[0], platform.Operation{
		Name:  "property.update",
		Scope: "ctr_ABC",
	})
	require.NoError(t, err)
	return fix.ID
}

func doJSON(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, _ := newTestServer(t, &stubService{result: testResult()})
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9272, server.config.Port)
	})

	t.Run("returns error when pipeline is nil", func(t *testing.T) {
		fixer := autofix.New(autofix.DefaultConfig(), nil, audit.NewMemorySink(), zap.NewNop())
		_, err := NewServer(nil, fixer, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline service cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		fixer := autofix.New(autofix.DefaultConfig(), nil, audit.NewMemorySink(), zap.NewNop())
		_, err := NewServer(&stubService{}, fixer, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t, &stubService{result: testResult()})

	rec := doJSON(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleStatus(t *testing.T) {
	server, fixer := newTestServer(t, &stubService{result: testResult()})
	proposeFix(t, fixer)

	rec := doJSON(server, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026.08.1", resp.Patterns.Version)
	assert.Equal(t, 42, resp.Patterns.Count)
	assert.Equal(t, 1, resp.Fixes.Proposed)
}

func TestHandleDiagnose(t *testing.T) {
	t.Run("returns full pipeline result", func(t *testing.T) {
		server, _ := newTestServer(t, &stubService{result: testResult()})

		rec := doJSON(server, http.MethodPost, "/api/v1/diagnose", DiagnoseRequest{
			Error:     json.RawMessage(`{"type":"x","status":403}`),
			Operation: platform.Operation{Name: "property.update"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp pipeline.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "req-1", resp.RequestID)
		assert.Equal(t, "diag-1", resp.Diagnosis.ID)
		assert.True(t, resp.AutoFixAvailable)
	})

	t.Run("rejects missing error payload", func(t *testing.T) {
		server, _ := newTestServer(t, &stubService{result: testResult()})

		rec := doJSON(server, http.MethodPost, "/api/v1/diagnose", DiagnoseRequest{
			Operation: platform.Operation{Name: "property.update"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing operation name", func(t *testing.T) {
		server, _ := newTestServer(t, &stubService{result: testResult()})

		rec := doJSON(server, http.MethodPost, "/api/v1/diagnose", DiagnoseRequest{
			Error: json.RawMessage(`{"status":403}`),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports shutdown as unavailable", func(t *testing.T) {
		server, _ := newTestServer(t, &stubService{err: pipeline.ErrServiceClosed})

		rec := doJSON(server, http.MethodPost, "/api/v1/diagnose", DiagnoseRequest{
			Error:     json.RawMessage(`{"status":403}`),
			Operation: platform.Operation{Name: "property.update"},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestFixEndpoints(t *testing.T) {
	t.Run("full lifecycle over http", func(t *testing.T) {
		server, fixer := newTestServer(t, &stubService{result: testResult()})
		fixID := proposeFix(t, fixer)

		rec := doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/preview", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		first := rec.Body.String()
		assert.Contains(t, first, "switch-scope")

		// Preview is stable across calls
		rec = doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/preview", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, first, rec.Body.String())

		rec = doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/approve", ApprovalRequest{Actor: "operator"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/execute", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var fix autofix.Fix
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fix))
		assert.Equal(t, autofix.StateSucceeded, fix.State)
	})

	t.Run("get returns 404 for unknown fix", func(t *testing.T) {
		server, _ := newTestServer(t, &stubService{result: testResult()})

		rec := doJSON(server, http.MethodGet, "/api/v1/fixes/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("approve requires actor", func(t *testing.T) {
		server, fixer := newTestServer(t, &stubService{result: testResult()})
		fixID := proposeFix(t, fixer)

		rec := doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/approve", ApprovalRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("approve before preview conflicts", func(t *testing.T) {
		server, fixer := newTestServer(t, &stubService{result: testResult()})
		fixID := proposeFix(t, fixer)

		rec := doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/approve", ApprovalRequest{Actor: "operator"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejected fix cannot execute", func(t *testing.T) {
		server, fixer := newTestServer(t, &stubService{result: testResult()})
		fixID := proposeFix(t, fixer)

		rec := doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/reject", ApprovalRequest{Actor: "operator", Reason: "manual review"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(server, http.MethodPost, "/api/v1/fixes/"+fixID+"/execute", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("list includes proposed fixes", func(t *testing.T) {
		server, fixer := newTestServer(t, &stubService{result: testResult()})
		fixID := proposeFix(t, fixer)

		rec := doJSON(server, http.MethodGet, "/api/v1/fixes", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var fixes []autofix.Fix
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fixes))
		require.Len(t, fixes, 1)
		assert.Equal(t, fixID, fixes[0].ID)
	})
}

func TestHandleMetrics(t *testing.T) {
	server, _ := newTestServer(t, &stubService{result: testResult()})

	rec := doJSON(server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
