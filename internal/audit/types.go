// Package audit records fix lifecycle events. Recording is best effort:
// a failing sink must never block or fail the fix that produced the event.
package audit

import (
	"context"
	"time"
)

// Kind identifies the lifecycle event being recorded.
type Kind string

const (
	KindFixProposed   Kind = "fix.proposed"
	KindFixPreviewed  Kind = "fix.previewed"
	KindFixApproved   Kind = "fix.approved"
	KindFixRejected   Kind = "fix.rejected"
	KindFixExecuting  Kind = "fix.executing"
	KindFixSucceeded  Kind = "fix.succeeded"
	KindFixFailed     Kind = "fix.failed"
	KindFixRolledBack Kind = "fix.rolled_back"
)

// Event is one immutable audit record.
type Event struct {
	ID          string         `json:"id"`
	Time        time.Time      `json:"time"`
	Kind        Kind           `json:"kind"`
	FixID       string         `json:"fix_id"`
	DiagnosisID string         `json:"diagnosis_id,omitempty"`
	Strategy    string         `json:"strategy,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Sink persists audit events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}
