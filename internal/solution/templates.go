package solution

import (
	"fmt"
	"time"

	"github.com/halcyonlabs/remedyd/internal/enrich"
	"github.com/halcyonlabs/remedyd/internal/normalize"
)

// GenericTriageID is the fallback solution returned when a diagnosis has no
// recognized pattern or no template resolves.
const GenericTriageID = "generic-triage"

// Fix strategy names understood by the fix engine.
const (
	StrategySwitchScope    = "switch-scope"
	StrategyBackoffRetry   = "backoff-retry"
	StrategyRefreshVersion = "refresh-version"
	StrategyRelist         = "relist-resources"
)

// renderInput carries everything a template may personalize against.
type renderInput struct {
	parsed normalize.ParsedError
	ec     *enrich.EnrichedContext
	// referencedScope is the scope mentioned in the error text, if any.
	referencedScope string
}

// writableScopes returns the scopes the caller holds write access to,
// excluding the scope the error complained about.
func (in renderInput) writableScopes() []string {
	if in.ec == nil {
		return nil
	}
	var out []string
	for _, scope := range in.ec.User.AvailableScopes {
		if scope == in.referencedScope {
			continue
		}
		if in.ec.User.PermissionSnapshot[scope] {
			out = append(out, scope)
		}
	}
	return out
}

func (in renderInput) snapshotKnown() bool {
	return in.ec != nil && len(in.ec.User.PermissionSnapshot) > 0
}

type template func(in renderInput) Solution

// templateRegistry maps solution IDs referenced by patterns to their
// renderers. Every renderer is total: it degrades to manual guidance when
// context is missing rather than failing.
var templateRegistry = map[string]template{
	"switch-accessible-scope": renderSwitchScope,
	"request-scope-grant":     renderScopeGrant,
	"backoff-retry":           renderBackoffRetry,
	"batch-operations":        renderBatchOperations,
	"refresh-latest-version":  renderRefreshVersion,
	"relist-resources":        renderRelist,
	"fix-request-parameter":   renderFixParameter,
	GenericTriageID:           renderGenericTriage,
}

func renderSwitchScope(in renderInput) Solution {
	s := Solution{
		ID:          "switch-accessible-scope",
		Title:       "Retry under a scope you can write to",
		Description: "The credential holds write access under a different scope. Re-issue the operation there.",
		FixStrategy: StrategySwitchScope,
	}

	writable := in.writableScopes()
	switch {
	case len(writable) > 0:
		s.Feasibility = Feasible
		s.SuccessRateEstimate = 0.85
		s.Steps = []Step{
			{Order: 1, Description: fmt.Sprintf("Confirm the target resource exists under scope %s", writable[0])},
			{Order: 2, Description: fmt.Sprintf("Re-issue the failed operation with scope %s instead of %s", writable[0], orUnknown(in.referencedScope))},
		}
	case in.snapshotKnown():
		s.Feasibility = Infeasible
		s.SuccessRateEstimate = 0.1
		s.Steps = []Step{
			{Order: 1, Description: "No alternative scope with write access was found for this credential"},
		}
	default:
		s.Feasibility = Unknown
		s.SuccessRateEstimate = 0.5
		s.Steps = []Step{
			{Order: 1, Description: "List the scopes available to this credential"},
			{Order: 2, Description: "Re-issue the failed operation under a scope with write access", ManualInputRequired: true},
		}
	}
	return s
}

func renderScopeGrant(in renderInput) Solution {
	scope := orUnknown(in.referencedScope)
	return Solution{
		ID:                  "request-scope-grant",
		Title:               "Request write access to the blocked scope",
		Description:         "An account administrator must extend the API credential's grant.",
		Feasibility:         Feasible,
		SuccessRateEstimate: 0.5,
		Steps: []Step{
			{Order: 1, Description: fmt.Sprintf("Ask an account administrator to add write access for %s to this credential", scope)},
			{Order: 2, Description: "Retry the failed operation once the grant propagates", ManualInputRequired: true},
		},
	}
}

func renderBackoffRetry(in renderInput) Solution {
	wait := 60 * time.Second
	feas := Unknown
	if in.ec != nil && in.ec.Environment.RateLimit.Known {
		feas = Feasible
		if ra := in.ec.Environment.RateLimit.ResetAfter; ra > 0 {
			wait = ra
		}
	}
	return Solution{
		ID:                  "backoff-retry",
		Title:               "Wait for the rate-limit window to reset, then retry",
		Description:         "The request quota is exhausted. Retrying after the reset succeeds without other changes.",
		Feasibility:         feas,
		SuccessRateEstimate: 0.9,
		FixStrategy:         StrategyBackoffRetry,
		Steps: []Step{
			{Order: 1, Description: fmt.Sprintf("Wait %s for the quota window to reset", wait)},
			{Order: 2, Description: "Retry the failed operation unchanged"},
		},
	}
}

func renderBatchOperations(in renderInput) Solution {
	return Solution{
		ID:                  "batch-operations",
		Title:               "Reduce request volume by batching",
		Description:         "Combine per-item calls into bulk operations to stay under the quota.",
		Feasibility:         Unknown,
		SuccessRateEstimate: 0.6,
		Steps: []Step{
			{Order: 1, Description: "Identify the loop issuing one API call per item"},
			{Order: 2, Description: "Replace it with the bulk variant of the same operation", ManualInputRequired: true},
		},
	}
}

func renderRefreshVersion(in renderInput) Solution {
	feas := Unknown
	if in.ec != nil {
		for _, state := range in.ec.Resources.ResourceStates {
			if state == "stale" || state == "pending-activation" {
				feas = Feasible
				break
			}
		}
	}
	return Solution{
		ID:                  "refresh-latest-version",
		Title:               "Rebase the change onto the latest resource version",
		Description:         "The edit targeted a superseded version. Fetching the latest version and reapplying resolves the conflict.",
		Feasibility:         feas,
		SuccessRateEstimate: 0.8,
		FixStrategy:         StrategyRefreshVersion,
		Steps: []Step{
			{Order: 1, Description: "Fetch the latest version of the target resource"},
			{Order: 2, Description: "Reapply the intended change against that version"},
			{Order: 3, Description: "Retry the failed operation with the new version number"},
		},
	}
}

func renderRelist(in renderInput) Solution {
	return Solution{
		ID:                  "relist-resources",
		Title:               "Refresh stale resource identifiers",
		Description:         "The referenced resource id no longer resolves. Re-listing restores current identifiers.",
		Feasibility:         Feasible,
		SuccessRateEstimate: 0.7,
		FixStrategy:         StrategyRelist,
		Steps: []Step{
			{Order: 1, Description: "Re-list the resources in the enclosing scope"},
			{Order: 2, Description: "Retry the operation with the identifier returned by the listing"},
		},
	}
}

func renderFixParameter(in renderInput) Solution {
	desc := "Correct the rejected request parameter"
	if len(in.parsed.SubErrors) > 0 && in.parsed.SubErrors[0].Detail != "" {
		desc = fmt.Sprintf("Correct the rejected parameter: %s", in.parsed.SubErrors[0].Detail)
	}
	return Solution{
		ID:                  "fix-request-parameter",
		Title:               "Fix the invalid request parameter",
		Description:         "The platform rejected the request body. The field named in the error must change.",
		Feasibility:         Feasible,
		SuccessRateEstimate: 0.65,
		Steps: []Step{
			{Order: 1, Description: desc, ManualInputRequired: true},
			{Order: 2, Description: "Retry the operation with the corrected request"},
		},
	}
}

// renderGenericTriage covers the unrecognized-error path. With no matched
// pattern there is no precondition the context could satisfy, so the
// solution is infeasible rather than feasibility-unknown.
func renderGenericTriage(in renderInput) Solution {
	return Solution{
		ID:                  GenericTriageID,
		Title:               "Triage the unrecognized error",
		Description:         "No known failure pattern matched. Gather detail before retrying.",
		Feasibility:         Infeasible,
		SuccessRateEstimate: 0.3,
		Steps: []Step{
			{Order: 1, Description: "Inspect the raw error payload for service and status hints"},
			{Order: 2, Description: "Check the platform API reference for the failing operation"},
			{Order: 3, Description: "Retry once with verbose logging enabled", ManualInputRequired: true},
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "the blocked scope"
	}
	return s
}
