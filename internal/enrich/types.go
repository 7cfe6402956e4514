package enrich

import (
	"time"

	"github.com/halcyonlabs/remedyd/internal/platform"
)

// Probe names, used for partial-failure attribution.
const (
	ProbePermissions = "permissions"
	ProbeResources   = "resources"
	ProbeRateLimit   = "rate_limit"
	ProbeHistory     = "history"
)

// EnrichedContext aggregates live operational context around a failed
// operation. It is always returned, possibly with empty sub-sections; a
// failing sub-probe contributes an entry in PartialFailures instead of
// aborting the enrichment.
type EnrichedContext struct {
	Operation platform.Operation `json:"operation"`

	User        UserContext        `json:"user"`
	Resources   ResourceContext    `json:"resources"`
	Environment EnvironmentContext `json:"environment"`

	// RepeatedFailure is set when the same tool recently failed with the
	// same error type, independent of pattern matching.
	RepeatedFailure bool `json:"repeated_failure"`

	PartialFailures []ProbeFailure `json:"partial_failures,omitempty"`
}

// UserContext is the permission/access snapshot for the caller identity.
type UserContext struct {
	// AvailableScopes are the contract/group/credential scopes visible to
	// the caller.
	AvailableScopes []string `json:"available_scopes,omitempty"`

	// PermissionSnapshot maps scope id to whether write access is held,
	// determined by lightweight probe operations, never full writes.
	PermissionSnapshot map[string]bool `json:"permission_snapshot,omitempty"`
}

// ResourceContext describes the state of resources related to the failed
// operation.
type ResourceContext struct {
	RelatedEntities []string          `json:"related_entities,omitempty"`
	ResourceStates  map[string]string `json:"resource_states,omitempty"`
}

// EnvironmentContext carries platform environment signals.
type EnvironmentContext struct {
	RateLimit RateLimitStatus `json:"rate_limit"`
}

// RateLimitStatus is the caller's current platform rate-limit standing.
// Known is false when the probe did not report.
type RateLimitStatus struct {
	Known      bool          `json:"known"`
	Limit      int           `json:"limit,omitempty"`
	Remaining  int           `json:"remaining,omitempty"`
	ResetAfter time.Duration `json:"reset_after,omitempty"`
}

// ProbeFailure records one sub-probe that failed or timed out.
type ProbeFailure struct {
	Probe  string `json:"probe"`
	Reason string `json:"reason"`
}

// HasFailure reports whether the named probe failed during enrichment.
func (c *EnrichedContext) HasFailure(probe string) bool {
	for _, f := range c.PartialFailures {
		if f.Probe == probe {
			return true
		}
	}
	return false
}
