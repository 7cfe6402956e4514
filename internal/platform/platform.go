// Package platform defines the consumed capability to the remote edge
// platform API.
//
// remedyd never owns transport or retry logic. The surrounding product
// injects a Client; this package only fixes the shapes the diagnosis
// pipeline depends on: an operation descriptor, an opaque result, and an
// opaque error payload.
package platform

import (
	"context"
	"fmt"
)

// Operation describes a single structured operation an agent issued (or is
// about to issue) against the platform.
type Operation struct {
	// Name is the tool/operation identifier, e.g. "property.activate".
	Name string `json:"name"`

	// Params are the operation arguments as sent to the platform.
	Params map[string]any `json:"params,omitempty"`

	// Scope is the contract/group/credential scope the operation ran under.
	Scope string `json:"scope,omitempty"`
}

// RawResult is an opaque success payload returned by the platform.
type RawResult struct {
	// Status is the HTTP status of the response, when known.
	Status int

	// Body is the decoded response payload. Any shape.
	Body any
}

// OperationError carries an opaque error payload returned by the platform.
// The payload shape is not interpreted here; normalization happens in the
// pipeline.
type OperationError struct {
	Operation string
	Status    int
	Payload   any
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("platform operation %s failed with status %d", e.Operation, e.Status)
}

// Client executes operations against the platform API.
//
// Execute may mutate platform state. Probe variants must be side-effect free;
// they exist so permission scanning never performs a real write.
type Client interface {
	// Execute runs an operation and returns the raw payload. A platform-level
	// failure is returned as *OperationError; transport failures are returned
	// as ordinary errors.
	Execute(ctx context.Context, op Operation) (*RawResult, error)

	// Probe runs a lightweight, non-mutating variant of an operation. Used
	// for permission scanning and fix verification dry-runs.
	Probe(ctx context.Context, op Operation) (*RawResult, error)

	// ListScopes returns the contract/group/credential scopes visible to the
	// caller identity the client is bound to.
	ListScopes(ctx context.Context) ([]string, error)
}
