package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/pipeline"
	"github.com/halcyonlabs/remedyd/internal/platform"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerDiagnoseTools()
	s.registerFixTools()
	s.registerPatternTools()
}

// ===== DIAGNOSIS TOOLS =====

type diagnoseInput struct {
	ErrorPayload    string         `json:"error_payload" jsonschema:"required,Raw error payload returned by the platform, verbatim"`
	OperationName   string         `json:"operation_name" jsonschema:"required,Tool or API operation that produced the error"`
	OperationParams map[string]any `json:"operation_params,omitempty" jsonschema:"Arguments the operation was called with"`
	Scope           string         `json:"scope,omitempty" jsonschema:"Contract or group scope the operation ran under"`
	AutoFix         bool           `json:"auto_fix,omitempty" jsonschema:"Propose an automated fix when the diagnosis is confident enough"`
	Actor           string         `json:"actor,omitempty" jsonschema:"Caller identity recorded in the audit trail"`
}

type solutionSummary struct {
	ID                  string   `json:"id" jsonschema:"Solution identifier"`
	Title               string   `json:"title" jsonschema:"Short solution title"`
	Feasibility         string   `json:"feasibility" jsonschema:"feasible infeasible or unknown"`
	SuccessRateEstimate float64  `json:"success_rate_estimate" jsonschema:"Estimated probability the solution resolves the error"`
	Steps               []string `json:"steps" jsonschema:"Ordered remediation steps"`
	AutoFixable         bool     `json:"auto_fixable" jsonschema:"True when the solution can run without manual input"`
}

type diagnoseOutput struct {
	RequestID        string            `json:"request_id" jsonschema:"Pipeline request ID"`
	PrimaryCause     string            `json:"primary_cause" jsonschema:"Most likely root cause"`
	Category         string            `json:"category" jsonschema:"Error category"`
	Confidence       float64           `json:"confidence" jsonschema:"Diagnosis confidence after context fusion"`
	ContextSignal    string            `json:"context_signal" jsonschema:"Whether live platform context corroborated or contradicted the match"`
	Solutions        []solutionSummary `json:"solutions" jsonschema:"Ranked solutions"`
	AutoFixAvailable bool              `json:"auto_fix_available" jsonschema:"True when at least one solution can be automated"`
	FixID            string            `json:"fix_id,omitempty" jsonschema:"Proposed fix ID when auto_fix was requested and eligible"`
	FixState         string            `json:"fix_state,omitempty" jsonschema:"Lifecycle state of the proposed fix"`
}

func (s *Server) registerDiagnoseTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "diagnose_and_repair",
		Description: "Diagnose a platform API error, rank solutions, and optionally propose an automated fix",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args diagnoseInput) (*mcp.CallToolResult, diagnoseOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "diagnose_and_repair")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "diagnose_and_repair")
			s.metrics.RecordInvocation(ctx, "diagnose_and_repair", time.Since(start), toolErr)
		}()

		if args.ErrorPayload == "" {
			toolErr = fmt.Errorf("error_payload is required")
			return nil, diagnoseOutput{}, toolErr
		}
		if args.OperationName == "" {
			toolErr = fmt.Errorf("operation_name is required")
			return nil, diagnoseOutput{}, toolErr
		}

		op := platform.Operation{
			Name:   args.OperationName,
			Params: args.OperationParams,
			Scope:  args.Scope,
		}
		result, err := s.pipeline.DiagnoseAndRepair(ctx, []byte(args.ErrorPayload), op, pipeline.Options{
			AutoFix: args.AutoFix,
			Actor:   args.Actor,
		})
		if err != nil {
			toolErr = fmt.Errorf("diagnosis failed: %w", err)
			return nil, diagnoseOutput{}, toolErr
		}

		output := diagnoseOutput{
			RequestID:        result.RequestID,
			PrimaryCause:     result.Diagnosis.PrimaryCause,
			Category:         string(result.Diagnosis.Category),
			Confidence:       result.Diagnosis.Confidence,
			ContextSignal:    string(result.Diagnosis.ContextSignal),
			AutoFixAvailable: result.AutoFixAvailable,
		}
		for _, sol := range result.Solutions {
			summary := solutionSummary{
				ID:                  sol.ID,
				Title:               sol.Title,
				Feasibility:         string(sol.Feasibility),
				SuccessRateEstimate: sol.SuccessRateEstimate,
				AutoFixable:         sol.AutoFixable(),
			}
			for _, step := range sol.Steps {
				summary.Steps = append(summary.Steps, step.Description)
			}
			output.Solutions = append(output.Solutions, summary)
		}
		if result.Fix != nil {
			output.FixID = result.Fix.ID
			output.FixState = string(result.Fix.State)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Diagnosis: %s (confidence %.2f, %d solutions)", output.PrimaryCause, output.Confidence, len(output.Solutions))},
			},
		}, output, nil
	})
}

// ===== FIX LIFECYCLE TOOLS =====

type fixIDInput struct {
	FixID string `json:"fix_id" jsonschema:"required,Fix identifier returned by diagnose_and_repair"`
}

type fixPreviewOutput struct {
	FixID   string `json:"fix_id" jsonschema:"Fix identifier"`
	State   string `json:"state" jsonschema:"Lifecycle state after previewing"`
	Preview string `json:"preview" jsonschema:"Rendered preview document, stable across calls"`
}

type fixDecisionInput struct {
	FixID  string `json:"fix_id" jsonschema:"required,Fix identifier"`
	Actor  string `json:"actor" jsonschema:"required,Identity making the decision"`
	Reason string `json:"reason,omitempty" jsonschema:"Optional rejection reason"`
}

type fixStateOutput struct {
	FixID      string `json:"fix_id" jsonschema:"Fix identifier"`
	Strategy   string `json:"strategy" jsonschema:"Fix strategy name"`
	State      string `json:"state" jsonschema:"Lifecycle state"`
	Scope      string `json:"scope,omitempty" jsonschema:"Scope the fix executes under"`
	ApprovedBy string `json:"approved_by,omitempty" jsonschema:"Actor that approved the fix"`
	Error      string `json:"error,omitempty" jsonschema:"Failure detail for failed or rolled back fixes"`
}

func (s *Server) registerFixTools() {
	// fix_preview
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fix_preview",
		Description: "Render the exact actions and rollback plan a proposed fix would take",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fixIDInput) (*mcp.CallToolResult, fixPreviewOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fix_preview")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "fix_preview")
			s.metrics.RecordInvocation(ctx, "fix_preview", time.Since(start), toolErr)
		}()

		preview, err := s.fixer.Preview(ctx, args.FixID)
		if err != nil {
			toolErr = fmt.Errorf("fix preview failed: %w", err)
			return nil, fixPreviewOutput{}, toolErr
		}

		fix, err := s.fixer.Get(args.FixID)
		if err != nil {
			toolErr = err
			return nil, fixPreviewOutput{}, toolErr
		}

		output := fixPreviewOutput{
			FixID:   args.FixID,
			State:   string(fix.State),
			Preview: string(preview),
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: output.Preview},
			},
		}, output, nil
	})

	// fix_approve
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fix_approve",
		Description: "Approve a previewed fix for execution",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fixDecisionInput) (*mcp.CallToolResult, fixStateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fix_approve")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "fix_approve")
			s.metrics.RecordInvocation(ctx, "fix_approve", time.Since(start), toolErr)
		}()

		if args.Actor == "" {
			toolErr = fmt.Errorf("actor is required")
			return nil, fixStateOutput{}, toolErr
		}

		fix, err := s.fixer.Approve(ctx, args.FixID, args.Actor)
		if err != nil {
			toolErr = fmt.Errorf("fix approve failed: %w", err)
			return nil, fixStateOutput{}, toolErr
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Fix %s approved by %s", fix.ID, args.Actor)},
			},
		}, fixState(fix), nil
	})

	// fix_reject
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fix_reject",
		Description: "Reject a fix so it can never execute",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fixDecisionInput) (*mcp.CallToolResult, fixStateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fix_reject")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "fix_reject")
			s.metrics.RecordInvocation(ctx, "fix_reject", time.Since(start), toolErr)
		}()

		if args.Actor == "" {
			toolErr = fmt.Errorf("actor is required")
			return nil, fixStateOutput{}, toolErr
		}

		fix, err := s.fixer.Reject(ctx, args.FixID, args.Actor, args.Reason)
		if err != nil {
			toolErr = fmt.Errorf("fix reject failed: %w", err)
			return nil, fixStateOutput{}, toolErr
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Fix %s rejected", fix.ID)},
			},
		}, fixState(fix), nil
	})

	// fix_execute
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fix_execute",
		Description: "Execute an approved fix and verify the original failure is resolved",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fixIDInput) (*mcp.CallToolResult, fixStateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fix_execute")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "fix_execute")
			s.metrics.RecordInvocation(ctx, "fix_execute", time.Since(start), toolErr)
		}()

		fix, err := s.fixer.Execute(ctx, args.FixID)
		if err != nil && fix.ID == "" {
			toolErr = fmt.Errorf("fix execute failed: %w", err)
			return nil, fixStateOutput{}, toolErr
		}

		text := fmt.Sprintf("Fix %s finished in state %s", fix.ID, fix.State)
		if fix.Error != "" {
			text = fmt.Sprintf("%s: %s", text, fix.Error)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: text},
			},
		}, fixState(fix), nil
	})

	// fix_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fix_status",
		Description: "Report the lifecycle state of a fix",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fixIDInput) (*mcp.CallToolResult, fixStateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fix_status")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "fix_status")
			s.metrics.RecordInvocation(ctx, "fix_status", time.Since(start), toolErr)
		}()

		fix, err := s.fixer.Get(args.FixID)
		if err != nil {
			toolErr = fmt.Errorf("fix status failed: %w", err)
			return nil, fixStateOutput{}, toolErr
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Fix %s is %s", fix.ID, fix.State)},
			},
		}, fixState(fix), nil
	})
}

// ===== PATTERN TOOLS =====

type patternsInfoInput struct{}

type patternsInfoOutput struct {
	Version string `json:"version" jsonschema:"Loaded pattern corpus version"`
	Count   int    `json:"count" jsonschema:"Number of loaded patterns"`
}

func (s *Server) registerPatternTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "patterns_info",
		Description: "Report the loaded error pattern corpus version and size",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args patternsInfoInput) (*mcp.CallToolResult, patternsInfoOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "patterns_info")
		defer func() {
			s.metrics.DecrementActive(ctx, "patterns_info")
			s.metrics.RecordInvocation(ctx, "patterns_info", time.Since(start), nil)
		}()

		version, count := s.pipeline.PatternsInfo()
		output := patternsInfoOutput{Version: version, Count: count}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Pattern corpus %s with %d patterns", version, count)},
			},
		}, output, nil
	})
}

// fixState projects an engine fix record into tool output.
func fixState(fix autofix.Fix) fixStateOutput {
	return fixStateOutput{
		FixID:      fix.ID,
		Strategy:   fix.Strategy,
		State:      string(fix.State),
		Scope:      fix.Scope,
		ApprovedBy: fix.ApprovedBy,
		Error:      fix.Error,
	}
}
