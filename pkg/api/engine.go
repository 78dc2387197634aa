package api

import (
	"context"
	"time"
)

// Engine ties the trigger registry, event bus, and scheduler together over a
// single run store.
type Engine interface {
	// RegisterWorkflow registers a definition by name. Definitions are
	// loaded at process start; re-registering a name is an error.
	RegisterWorkflow(def WorkflowDefinition) error

	// RegisterTrigger binds an event type to a registered workflow.
	RegisterTrigger(t Trigger) error

	// RegisterCancelTrigger binds an event type to cancellation of an
	// active run.
	RegisterCancelTrigger(t CancelTrigger) error

	// Publish hands a domain event to the bus. It is fire-and-forget: it
	// never blocks on workflow execution and never fails the caller. A
	// duplicate idempotency key is a no-op, and store errors are logged and
	// swallowed.
	Publish(ctx context.Context, evt Event)

	// Sweep performs one scheduler pass as the given owner: lease due runs
	// and advance each as far as it can go right now. Returns the number of
	// runs advanced. Worker pools call this in a loop.
	Sweep(ctx context.Context, owner string) (int, error)

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)

	// StepHistory returns the append-only step records for a run in
	// insertion order.
	StepHistory(ctx context.Context, runID string) ([]StepRecord, error)

	// CancelRun cancels a non-terminal run by ID. Returns false when the
	// run is already terminal or currently held by a live lease.
	CancelRun(ctx context.Context, id string) (bool, error)

	// PurgeTerminal deletes terminal runs (and their step records) whose
	// last update predates olderThan. Returns the number purged.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)

	// Ping verifies the run store is reachable; used for readiness.
	Ping(ctx context.Context) error
}

// EngineOptions tunes an engine. Zero values select defaults.
type EngineOptions struct {
	Observer Observer
	Clock    Clock

	// LeaseTTL bounds how long a worker may hold a run before the lease is
	// considered abandoned and reclaimable. Default 2m.
	LeaseTTL time.Duration

	// SweepBatchSize caps how many due runs one Sweep leases. Default 32.
	SweepBatchSize int

	// DefaultRetry applies to steps without an explicit policy.
	// Default {MaxAttempts: 3, BaseBackoff: 30s, MaxBackoff: 1h}.
	DefaultRetry RetryPolicy
}
