package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linkup-social/flowkit/pkg/api"
)

// InMemoryStore is a goroutine-safe RunStore backed by maps. It is not
// durable; it exists for tests and the LocalRunner.
type InMemoryStore struct {
	mu      sync.Mutex
	runs    map[string]*api.Run
	active  map[string]string // workflowName + "\x00" + key -> run id
	records map[string][]api.StepRecord
}

var _ RunStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:    make(map[string]*api.Run),
		active:  make(map[string]string),
		records: make(map[string][]api.StepRecord),
	}
}

func activeKey(workflow, key string) string {
	return workflow + "\x00" + key
}

func copyRun(r *api.Run) *api.Run {
	c := *r
	c.Context = r.Context.Clone()
	return &c
}

func (s *InMemoryStore) CreateOrGetRun(ctx context.Context, run *api.Run) (*api.Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ak := activeKey(run.WorkflowName, run.IdempotencyKey)
	if id, ok := s.active[ak]; ok {
		if existing, ok := s.runs[id]; ok && !existing.Status.Terminal() {
			return copyRun(existing), false, nil
		}
		// Stale index entry left by a terminal run.
		delete(s.active, ak)
	}

	stored := copyRun(run)
	s.runs[stored.ID] = stored
	s.active[ak] = stored.ID
	return copyRun(stored), true, nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

func (s *InMemoryStore) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*api.Run
	for _, run := range s.runs {
		if opts.WorkflowName != "" && run.WorkflowName != opts.WorkflowName {
			continue
		}
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		result = append(result, copyRun(run))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *InMemoryStore) DueRuns(ctx context.Context, now time.Time, limit int) ([]*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*api.Run
	for _, run := range s.runs {
		if runIsDue(run, now) {
			due = append(due, copyRun(run))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func runIsDue(run *api.Run, now time.Time) bool {
	switch run.Status {
	case api.StatusPending, api.StatusSleeping:
		return !run.NextRunAt.After(now)
	case api.StatusRunning:
		return !run.LeaseExpiresAt.After(now)
	}
	return false
}

func (s *InMemoryStore) AcquireLease(ctx context.Context, runID, owner string, ttl time.Duration, now time.Time) (*api.Run, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, false, false, ErrRunNotFound
	}
	if !runIsDue(run, now) {
		return nil, false, false, nil
	}

	reclaimed := run.Status == api.StatusRunning
	run.Status = api.StatusRunning
	run.LeaseOwner = owner
	run.LeaseExpiresAt = now.Add(ttl)
	run.UpdatedAt = now
	return copyRun(run), true, reclaimed, nil
}

func (s *InMemoryStore) UpdateRun(ctx context.Context, run *api.Run, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.runs[run.ID]
	if !ok {
		return ErrRunNotFound
	}
	if current.Status != api.StatusRunning || current.LeaseOwner != owner {
		return ErrLeaseNotHeld
	}

	stored := copyRun(run)
	if stored.Status != api.StatusRunning {
		stored.LeaseOwner = ""
		stored.LeaseExpiresAt = time.Time{}
	}
	s.runs[run.ID] = stored

	if stored.Status.Terminal() {
		ak := activeKey(stored.WorkflowName, stored.IdempotencyKey)
		if s.active[ak] == stored.ID {
			delete(s.active, ak)
		}
	}
	return nil
}

func (s *InMemoryStore) AppendStepRecord(ctx context.Context, rec api.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Output = rec.Output.Clone()
	s.records[rec.RunID] = append(s.records[rec.RunID], rec)
	return nil
}

func (s *InMemoryStore) StepRecords(ctx context.Context, runID string) ([]api.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[runID]
	out := make([]api.StepRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (s *InMemoryStore) CancelRun(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return false, ErrRunNotFound
	}
	return s.cancelLocked(run, now), nil
}

func (s *InMemoryStore) CancelActiveRun(ctx context.Context, workflowName, key string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[activeKey(workflowName, key)]
	if !ok {
		return false, nil
	}
	run, ok := s.runs[id]
	if !ok {
		return false, nil
	}
	return s.cancelLocked(run, now), nil
}

// cancelLocked cancels unless the run is terminal or protected by a live
// lease; the executor holding that lease wins and its final write stands.
func (s *InMemoryStore) cancelLocked(run *api.Run, now time.Time) bool {
	if run.Status.Terminal() {
		return false
	}
	if run.Status == api.StatusRunning && run.LeaseExpiresAt.After(now) {
		return false
	}
	run.Status = api.StatusCancelled
	run.LeaseOwner = ""
	run.LeaseExpiresAt = time.Time{}
	run.UpdatedAt = now
	delete(s.active, activeKey(run.WorkflowName, run.IdempotencyKey))
	return true
}

func (s *InMemoryStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, run := range s.runs {
		if run.Status.Terminal() && run.UpdatedAt.Before(olderThan) {
			delete(s.runs, id)
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }
