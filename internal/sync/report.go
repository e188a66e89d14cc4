package sync

import (
	"fmt"
	"strings"

	"github.com/caleb/fittrack/internal/models"
)

// Outcome classifies the result of evaluating one mutation in a pass.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
	OutcomeDeferred  Outcome = "deferred"
)

// FailureReason says why a mutation was dropped from the queue.
type FailureReason string

const (
	ReasonExhausted FailureReason = "exhausted"
	ReasonRejected  FailureReason = "rejected"
	ReasonConflict  FailureReason = "conflict"
	ReasonMissing   FailureReason = "missing"
)

// Failure pairs a dropped mutation with the reason it was dropped.
type Failure struct {
	Mutation models.Mutation
	Reason   FailureReason
	Err      error
}

// Report summarizes one ProcessQueue call. Applied, Deferred, and Retrying
// count record evaluations across all coalesced passes; Failures lists every
// record dropped without reaching the remote state it described.
type Report struct {
	Applied      int
	Deferred     int
	Retrying     int
	Failures     []Failure
	AuthRequired bool
	Passes       int
}

func (r *Report) fail(m models.Mutation, reason FailureReason, err error) {
	r.Failures = append(r.Failures, Failure{Mutation: m, Reason: reason, Err: err})
}

// Empty reports whether the call found nothing to do.
func (r *Report) Empty() bool {
	return r.Applied == 0 && r.Deferred == 0 && r.Retrying == 0 &&
		len(r.Failures) == 0 && !r.AuthRequired
}

// Summary renders a compact one-line account of the call.
func (r *Report) Summary() string {
	if r.AuthRequired {
		return "authentication required"
	}
	if r.Empty() {
		return "nothing to sync"
	}
	parts := []string{fmt.Sprintf("%d applied", r.Applied)}
	if r.Deferred > 0 {
		parts = append(parts, fmt.Sprintf("%d waiting on parent", r.Deferred))
	}
	if r.Retrying > 0 {
		parts = append(parts, fmt.Sprintf("%d retrying", r.Retrying))
	}
	if len(r.Failures) > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", len(r.Failures)))
	}
	return strings.Join(parts, ", ")
}
