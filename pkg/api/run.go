package api

import "time"

// Status represents the lifecycle state of a Run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSleeping  Status = "SLEEPING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal runs are retained
// for audit until the retention sweep purges them.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Run is one durable execution of a WorkflowDefinition for one triggering
// event.
//
// Invariant: at most one non-terminal Run exists per
// (WorkflowName, IdempotencyKey) at any time. The store enforces this with a
// uniqueness constraint, which is what keeps duplicate event deliveries from
// producing duplicate emails or expirations.
type Run struct {
	ID             string
	WorkflowName   string
	IdempotencyKey string
	Status         Status

	// CurrentStep tracks progress through the workflow steps.
	// Semantics:
	//   - Before any steps run: 0
	//   - While running step i: i
	//   - After successful completion: len(steps)
	CurrentStep int

	// NextRunAt is the earliest time the run is eligible for execution.
	// Meaningful while Pending or Sleeping.
	NextRunAt time.Time

	// Attempt counts failures of the current step. Reset to zero whenever a
	// step completes.
	Attempt int

	// Context accumulates key/value results from completed steps. Steps read
	// prior results from it and must not reach for ambient mutable state, so
	// replay after a crash is deterministic.
	Context Context

	// LeaseOwner / LeaseExpiresAt form the time-bounded exclusive claim a
	// worker holds while advancing the run. A lease past its expiry may be
	// reclaimed by any worker.
	LeaseOwner     string
	LeaseExpiresAt time.Time

	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome classifies one step attempt in the run's history.
type Outcome string

const (
	// OutcomeSuccess marks the attempt that completed the step.
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeRetrying marks a failed attempt with retries remaining.
	OutcomeRetrying Outcome = "RETRYING"
	// OutcomeFailure marks the failed attempt that exhausted retries.
	OutcomeFailure Outcome = "FAILURE"
)

// StepRecord is an append-only history entry for one step attempt. Records
// are never mutated after write. A Success record carries the step's output
// so that a reclaimed run can merge the result without re-executing the
// step; that check is the step-level idempotency boundary.
type StepRecord struct {
	RunID      string
	StepIndex  int
	StepName   string
	Attempt    int
	Outcome    Outcome
	Error      string
	Output     Context
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunListOptions filters ListRuns. Zero values mean "no filter".
type RunListOptions struct {
	WorkflowName string
	Status       Status
	Limit        int
}
