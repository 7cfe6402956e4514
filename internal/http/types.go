// Package http provides the HTTP API for remedyd.
package http

import "github.com/halcyonlabs/remedyd/internal/autofix"

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Patterns PatternsStatus `json:"patterns"`
	Fixes    FixCounts      `json:"fixes"`
}

// PatternsStatus describes the loaded pattern corpus.
type PatternsStatus struct {
	Version string `json:"version"`
	Count   int    `json:"count"`
}

// FixCounts breaks down tracked fixes by lifecycle state.
type FixCounts struct {
	Proposed   int `json:"proposed"`
	Previewed  int `json:"previewed"`
	Approved   int `json:"approved"`
	Executing  int `json:"executing"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	RolledBack int `json:"rolled_back"`
	Rejected   int `json:"rejected"`
}

// countFixStates tallies fixes by state.
func countFixStates(fixes []autofix.Fix) FixCounts {
	var counts FixCounts
	for _, fix := range fixes {
		switch fix.State {
		case autofix.StateProposed:
			counts.Proposed++
		case autofix.StatePreviewed:
			counts.Previewed++
		case autofix.StateApproved:
			counts.Approved++
		case autofix.StateExecuting:
			counts.Executing++
		case autofix.StateSucceeded:
			counts.Succeeded++
		case autofix.StateFailed:
			counts.Failed++
		case autofix.StateRolledBack:
			counts.RolledBack++
		case autofix.StateRejected:
			counts.Rejected++
		}
	}
	return counts
}
