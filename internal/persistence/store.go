package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/linkup-social/flowkit/pkg/api"
)

var (
	// ErrRunNotFound is returned when a run id does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrLeaseNotHeld is returned by UpdateRun when the caller's lease was
	// lost (expired and reclaimed, or the run was cancelled underneath it).
	ErrLeaseNotHeld = errors.New("lease not held")
)

// RunStore is the durable source of truth for runs and their step history.
// The scheduler holds only transient working state; everything that must
// survive a crash lives here.
//
// Implementations must make CreateOrGetRun linearizable with run creation:
// no two non-terminal runs may ever coexist for the same
// (workflowName, idempotencyKey), enforced at the storage layer.
type RunStore interface {
	// CreateOrGetRun persists run unless a non-terminal run already exists
	// for its (WorkflowName, IdempotencyKey); in that case the existing run
	// is returned and created is false.
	CreateOrGetRun(ctx context.Context, run *api.Run) (stored *api.Run, created bool, err error)

	GetRun(ctx context.Context, id string) (*api.Run, error)
	ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error)

	// DueRuns returns runs eligible for execution at now, ordered by
	// NextRunAt ascending (earliest deadline first): Pending or Sleeping
	// runs that are due, plus Running runs whose lease has expired
	// (abandoned by a crashed worker).
	DueRuns(ctx context.Context, now time.Time, limit int) ([]*api.Run, error)

	// AcquireLease atomically transitions a due run to Running on behalf of
	// owner. This compare-and-swap is the sole serialization point between
	// workers: losing the race returns acquired=false with no error.
	// reclaimed is true when the run was taken over from an expired lease.
	AcquireLease(ctx context.Context, runID, owner string, ttl time.Duration, now time.Time) (run *api.Run, acquired bool, reclaimed bool, err error)

	// UpdateRun persists the run's mutable fields. The write is guarded by
	// the caller's lease; a lost lease yields ErrLeaseNotHeld. A non-Running
	// status in run releases the lease in the same write.
	UpdateRun(ctx context.Context, run *api.Run, owner string) error

	// AppendStepRecord appends one attempt to the run's history. Records
	// are never mutated after write.
	AppendStepRecord(ctx context.Context, rec api.StepRecord) error

	// StepRecords returns a run's history in insertion order.
	StepRecords(ctx context.Context, runID string) ([]api.StepRecord, error)

	// CancelRun transitions a run to Cancelled unless it is terminal or
	// held by a live lease. Returns false when nothing changed.
	CancelRun(ctx context.Context, id string, now time.Time) (bool, error)

	// CancelActiveRun cancels the non-terminal run for the given key, if
	// any. Same lease rules as CancelRun.
	CancelActiveRun(ctx context.Context, workflowName, key string, now time.Time) (bool, error)

	// PurgeTerminal deletes terminal runs updated before olderThan along
	// with their step records, returning the number of runs removed.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
