package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkup-social/flowkit/internal/persistence"
	"github.com/linkup-social/flowkit/pkg/api"
)

const (
	defaultLeaseTTL       = 2 * time.Minute
	defaultSweepBatchSize = 32
)

var defaultRetry = api.RetryPolicy{
	MaxAttempts: 3,
	BaseBackoff: 30 * time.Second,
	MaxBackoff:  time.Hour,
}

// engineImpl drives runs over a RunStore: the bus creates them, Sweep
// advances them.
type engineImpl struct {
	store    persistence.RunStore
	registry *registry
	observer api.Observer
	clock    api.Clock

	leaseTTL     time.Duration
	batchSize    int
	defaultRetry api.RetryPolicy
}

// NewEngine creates an engine over the given store, applying option
// defaults.
func NewEngine(store persistence.RunStore, opts api.EngineOptions) api.Engine {
	e := &engineImpl{
		store:        store,
		registry:     newRegistry(),
		observer:     opts.Observer,
		clock:        opts.Clock,
		leaseTTL:     opts.LeaseTTL,
		batchSize:    opts.SweepBatchSize,
		defaultRetry: opts.DefaultRetry,
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.clock == nil {
		e.clock = api.SystemClock()
	}
	if e.leaseTTL <= 0 {
		e.leaseTTL = defaultLeaseTTL
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultSweepBatchSize
	}
	if e.defaultRetry.MaxAttempts <= 0 {
		e.defaultRetry = defaultRetry
	}
	return e
}

// NewInMemoryEngine returns an engine backed entirely by an in-memory store.
func NewInMemoryEngine(opts api.EngineOptions) api.Engine {
	return NewEngine(persistence.NewInMemoryStore(), opts)
}

// NewSQLiteEngine returns an engine that persists runs in a SQLite database.
func NewSQLiteEngine(db *sql.DB, opts api.EngineOptions) (api.Engine, error) {
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, opts), nil
}

// NewRedisEngine returns an engine that persists runs in Redis under the
// given key prefix.
func NewRedisEngine(client *redis.Client, prefix string, opts api.EngineOptions) api.Engine {
	return NewEngine(persistence.NewRedisRunStore(client, prefix), opts)
}

func (e *engineImpl) RegisterWorkflow(def api.WorkflowDefinition) error {
	return e.registry.registerWorkflow(def)
}

func (e *engineImpl) RegisterTrigger(t api.Trigger) error {
	return e.registry.registerTrigger(t)
}

func (e *engineImpl) RegisterCancelTrigger(t api.CancelTrigger) error {
	return e.registry.registerCancelTrigger(t)
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	return e.store.GetRun(ctx, id)
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	return e.store.ListRuns(ctx, opts)
}

func (e *engineImpl) StepHistory(ctx context.Context, runID string) ([]api.StepRecord, error) {
	return e.store.StepRecords(ctx, runID)
}

func (e *engineImpl) CancelRun(ctx context.Context, id string) (bool, error) {
	cancelled, err := e.store.CancelRun(ctx, id, e.clock.Now())
	if err != nil {
		return false, err
	}
	if cancelled {
		if run, gerr := e.store.GetRun(ctx, id); gerr == nil {
			e.observer.OnRunCancelled(ctx, run)
		}
	}
	return cancelled, nil
}

func (e *engineImpl) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	return e.store.PurgeTerminal(ctx, olderThan)
}

func (e *engineImpl) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *engineImpl) retryFor(step api.StepDefinition) api.RetryPolicy {
	if step.Retry != nil && step.Retry.MaxAttempts > 0 {
		return *step.Retry
	}
	return e.defaultRetry
}
