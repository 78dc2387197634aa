package flowkit

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkup-social/flowkit/internal/engine"
	"github.com/linkup-social/flowkit/internal/persistence"
	"github.com/linkup-social/flowkit/pkg/api"
)

// ErrRunNotFound is returned by run lookups for unknown or purged run IDs.
var ErrRunNotFound = persistence.ErrRunNotFound

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	EngineOptions        = api.EngineOptions
	WorkflowDefinition   = api.WorkflowDefinition
	StepDefinition       = api.StepDefinition
	StepFunc             = api.StepFunc
	Context              = api.Context
	Run                  = api.Run
	RunListOptions       = api.RunListOptions
	StepRecord           = api.StepRecord
	Status               = api.Status
	Outcome              = api.Outcome
	Event                = api.Event
	EventType            = api.EventType
	Trigger              = api.Trigger
	CancelTrigger        = api.CancelTrigger
	RetryPolicy          = api.RetryPolicy
	Clock                = api.Clock
	ManualClock          = api.ManualClock
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewManualClock       = api.NewManualClock
	SystemClock          = api.SystemClock

	NewSleepUntilError   = api.NewSleepUntilError
	NewShortCircuitError = api.NewShortCircuitError
	NewCancelRunError    = api.NewCancelRunError
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusSleeping  = api.StatusSleeping
	StatusSucceeded = api.StatusSucceeded
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// Re-export outcome values.

const (
	OutcomeSuccess  = api.OutcomeSuccess
	OutcomeRetrying = api.OutcomeRetrying
	OutcomeFailure  = api.OutcomeFailure
)

// Re-export event types.

const (
	EventUserCreated             = api.EventUserCreated
	EventUserUpdated             = api.EventUserUpdated
	EventUserDeleted             = api.EventUserDeleted
	EventConnectionRequested     = api.EventConnectionRequested
	EventConnectionStatusChanged = api.EventConnectionStatusChanged
	EventMessageSent             = api.EventMessageSent
	EventStoryCreated            = api.EventStoryCreated
	EventStoryDeleted            = api.EventStoryDeleted
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by an in-memory store.
func NewInMemoryEngine(opts EngineOptions) Engine {
	return engine.NewInMemoryEngine(opts)
}

// NewSQLiteEngine returns an Engine that persists runs and step records
// in a SQLite database. Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB, opts EngineOptions) (Engine, error) {
	return engine.NewSQLiteEngine(db, opts)
}

// NewRedisEngine returns an Engine that persists runs in Redis under the
// given key prefix.
func NewRedisEngine(client *redis.Client, prefix string, opts EngineOptions) Engine {
	return engine.NewRedisEngine(client, prefix, opts)
}

// Convenience helpers that just forward to the underlying Engine.

// Publish delivers an event to the engine's trigger registry. It never
// returns an error: delivery problems are logged and surfaced through run
// state, not to the publisher.
func Publish(ctx context.Context, eng Engine, evt Event) {
	eng.Publish(ctx, evt)
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*Run, error) {
	return eng.ListRuns(ctx, opts)
}

// StepHistory returns the append-only step history for a run.
func StepHistory(ctx context.Context, eng Engine, runID string) ([]StepRecord, error) {
	return eng.StepHistory(ctx, runID)
}

// CancelRun cancels a non-terminal run. It reports whether the transition
// happened; cancelling an already-terminal run is a no-op.
func CancelRun(ctx context.Context, eng Engine, id string) (bool, error) {
	return eng.CancelRun(ctx, id)
}

// Sweep performs one scheduler pass on behalf of the given lease owner and
// returns how many runs it advanced. Most callers use worker.Pool instead.
func Sweep(ctx context.Context, eng Engine, owner string) (int, error) {
	return eng.Sweep(ctx, owner)
}

// PurgeTerminal deletes terminal runs last updated before olderThan.
func PurgeTerminal(ctx context.Context, eng Engine, olderThan time.Time) (int, error) {
	return eng.PurgeTerminal(ctx, olderThan)
}
