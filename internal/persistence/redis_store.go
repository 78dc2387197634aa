package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkup-social/flowkit/pkg/api"
)

// RedisRunStore is a RunStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>run:<id>                     => gob-encoded redisRunPayload
//	<prefix>active:<workflow>:<key>      => run id (SET NX; the uniqueness point)
//	<prefix>lease:<id>                   => lease owner with TTL (Lua CAS)
//	<prefix>idx:due                      => ZSET of run ids scored by due time
//	<prefix>idx:terminal                 => ZSET of run ids scored by updatedAt
//	<prefix>records:<id>                 => LIST of gob-encoded step records
//
// The due and terminal indexes are best-effort; readers always re-check the
// payload, which is the truth. The active-key SET NX plus the lease Lua
// scripts are the two compare-and-swap points.
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

var _ RunStore = (*RedisRunStore)(nil)

// NewRedisRunStore creates a RedisRunStore. prefix is optional but
// recommended (e.g. "flowkit:").
func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "flowkit:"
	}
	return &RedisRunStore{client: client, prefix: prefix}
}

func (r *RedisRunStore) keyRun(id string) string     { return r.prefix + "run:" + id }
func (r *RedisRunStore) keyLease(id string) string   { return r.prefix + "lease:" + id }
func (r *RedisRunStore) keyRecords(id string) string { return r.prefix + "records:" + id }
func (r *RedisRunStore) keyDue() string              { return r.prefix + "idx:due" }
func (r *RedisRunStore) keyTerminal() string         { return r.prefix + "idx:terminal" }

func (r *RedisRunStore) keyActive(workflow, key string) string {
	return r.prefix + "active:" + workflow + ":" + key
}

type redisRunPayload struct {
	ID             string
	Workflow       string
	IdempotencyKey string
	Status         string
	CurrentStep    int
	NextRunAt      int64
	Attempt        int
	Context        []byte
	LeaseOwner     string
	LeaseExpiresAt int64
	LastError      string
	CreatedAt      int64
	UpdatedAt      int64
}

func encodeRunPayload(run *api.Run) ([]byte, error) {
	rcBytes, err := EncodeContext(run.Context)
	if err != nil {
		return nil, err
	}
	payload := redisRunPayload{
		ID:             run.ID,
		Workflow:       run.WorkflowName,
		IdempotencyKey: run.IdempotencyKey,
		Status:         string(run.Status),
		CurrentStep:    run.CurrentStep,
		NextRunAt:      unixOrZero(run.NextRunAt),
		Attempt:        run.Attempt,
		Context:        rcBytes,
		LeaseOwner:     run.LeaseOwner,
		LeaseExpiresAt: unixOrZero(run.LeaseExpiresAt),
		LastError:      run.LastError,
		CreatedAt:      unixOrZero(run.CreatedAt),
		UpdatedAt:      unixOrZero(run.UpdatedAt),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRunPayload(data []byte) (*api.Run, error) {
	if len(data) == 0 {
		return nil, ErrRunNotFound
	}
	var payload redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}
	rc, err := DecodeContext(payload.Context)
	if err != nil {
		return nil, err
	}
	return &api.Run{
		ID:             payload.ID,
		WorkflowName:   payload.Workflow,
		IdempotencyKey: payload.IdempotencyKey,
		Status:         api.Status(payload.Status),
		CurrentStep:    payload.CurrentStep,
		NextRunAt:      timeOrZero(payload.NextRunAt),
		Attempt:        payload.Attempt,
		Context:        rc,
		LeaseOwner:     payload.LeaseOwner,
		LeaseExpiresAt: timeOrZero(payload.LeaseExpiresAt),
		LastError:      payload.LastError,
		CreatedAt:      timeOrZero(payload.CreatedAt),
		UpdatedAt:      timeOrZero(payload.UpdatedAt),
	}, nil
}

const (
	// Lua script for acquiring a lease. Returns 1 if acquired, 0 otherwise.
	// A lease held by the same owner is re-entrant.
	redisLeaseAcquireLua = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlms = tonumber(ARGV[2])

local cur = redis.call('GET', key)
if not cur then
	redis.call('PSETEX', key, ttlms, owner)
	return 1
end
if cur == owner then
	redis.call('PEXPIRE', key, ttlms)
	return 1
end
return 0
`

	// Lua script for releasing a lease. Returns 1 if released, 0 otherwise.
	redisLeaseReleaseLua = `
local key = KEYS[1]
local owner = ARGV[1]

local cur = redis.call('GET', key)
if cur == owner then
	redis.call('DEL', key)
	return 1
end
return 0
`
)

var (
	leaseAcquireScript = redis.NewScript(redisLeaseAcquireLua)
	leaseReleaseScript = redis.NewScript(redisLeaseReleaseLua)
)

func (r *RedisRunStore) saveRun(ctx context.Context, run *api.Run) error {
	data, err := encodeRunPayload(run)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.keyRun(run.ID), data, 0).Err(); err != nil {
		return err
	}

	// Index updates are best-effort; readers re-check the payload.
	pipe := r.client.TxPipeline()
	switch run.Status {
	case api.StatusPending, api.StatusSleeping:
		pipe.ZAdd(ctx, r.keyDue(), redis.Z{Score: float64(unixOrZero(run.NextRunAt)), Member: run.ID})
		pipe.ZRem(ctx, r.keyTerminal(), run.ID)
	case api.StatusRunning:
		pipe.ZAdd(ctx, r.keyDue(), redis.Z{Score: float64(unixOrZero(run.LeaseExpiresAt)), Member: run.ID})
	default:
		pipe.ZRem(ctx, r.keyDue(), run.ID)
		pipe.ZAdd(ctx, r.keyTerminal(), redis.Z{Score: float64(unixOrZero(run.UpdatedAt)), Member: run.ID})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRunStore) CreateOrGetRun(ctx context.Context, run *api.Run) (*api.Run, bool, error) {
	ak := r.keyActive(run.WorkflowName, run.IdempotencyKey)

	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.client.SetNX(ctx, ak, run.ID, 0).Result()
		if err != nil {
			return nil, false, err
		}
		if ok {
			if err := r.saveRun(ctx, run); err != nil {
				return nil, false, err
			}
			return copyRun(run), true, nil
		}

		existingID, err := r.client.Get(ctx, ak).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // index vanished between SETNX and GET; retry
			}
			return nil, false, err
		}
		existing, err := r.GetRun(ctx, existingID)
		if err == nil && !existing.Status.Terminal() {
			return existing, false, nil
		}
		if err != nil && !errors.Is(err, ErrRunNotFound) {
			return nil, false, err
		}
		// Stale index entry for a terminal or vanished run: clear and retry.
		if err := r.client.Del(ctx, ak).Err(); err != nil {
			return nil, false, err
		}
	}
	return nil, false, errors.New("create-or-get run: active key contention")
}

func (r *RedisRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	data, err := r.client.Get(ctx, r.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return decodeRunPayload(data)
}

func (r *RedisRunStore) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	var runs []*api.Run
	iter := r.client.Scan(ctx, 0, r.prefix+"run:*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		run, err := decodeRunPayload(data)
		if err != nil {
			return nil, err
		}
		if opts.WorkflowName != "" && run.WorkflowName != opts.WorkflowName {
			continue
		}
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		runs = append(runs, run)
		if opts.Limit > 0 && len(runs) >= opts.Limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *RedisRunStore) DueRuns(ctx context.Context, now time.Time, limit int) ([]*api.Run, error) {
	if limit <= 0 {
		limit = 32
	}
	ids, err := r.client.ZRangeByScore(ctx, r.keyDue(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixNano(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	var due []*api.Run
	for _, id := range ids {
		run, err := r.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				r.client.ZRem(ctx, r.keyDue(), id)
				continue
			}
			return nil, err
		}
		// The index score can be stale; the payload is the truth.
		if runIsDue(run, now) {
			due = append(due, run)
		}
	}
	return due, nil
}

func (r *RedisRunStore) AcquireLease(ctx context.Context, runID, owner string, ttl time.Duration, now time.Time) (*api.Run, bool, bool, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, false, false, err
	}
	if !runIsDue(run, now) {
		return nil, false, false, nil
	}
	reclaimed := run.Status == api.StatusRunning

	acquired, err := leaseAcquireScript.Run(ctx, r.client,
		[]string{r.keyLease(runID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, false, false, err
	}
	if acquired != 1 {
		return nil, false, false, nil
	}

	run.Status = api.StatusRunning
	run.LeaseOwner = owner
	run.LeaseExpiresAt = now.Add(ttl)
	run.UpdatedAt = now
	if err := r.saveRun(ctx, run); err != nil {
		return nil, false, false, err
	}
	return run, true, reclaimed, nil
}

func (r *RedisRunStore) UpdateRun(ctx context.Context, run *api.Run, owner string) error {
	cur, err := r.client.Get(ctx, r.keyLease(run.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrLeaseNotHeld
		}
		return err
	}
	if cur != owner {
		return ErrLeaseNotHeld
	}

	stored := copyRun(run)
	if stored.Status != api.StatusRunning {
		stored.LeaseOwner = ""
		stored.LeaseExpiresAt = time.Time{}
	}
	if err := r.saveRun(ctx, stored); err != nil {
		return err
	}

	if stored.Status != api.StatusRunning {
		if _, err := leaseReleaseScript.Run(ctx, r.client,
			[]string{r.keyLease(run.ID)}, owner).Int(); err != nil {
			return err
		}
	}
	if stored.Status.Terminal() {
		ak := r.keyActive(stored.WorkflowName, stored.IdempotencyKey)
		// Only clear the index if it still points at this run.
		if id, err := r.client.Get(ctx, ak).Result(); err == nil && id == stored.ID {
			r.client.Del(ctx, ak)
		}
	}
	return nil
}

func (r *RedisRunStore) AppendStepRecord(ctx context.Context, rec api.StepRecord) error {
	out, err := EncodeContext(rec.Output)
	if err != nil {
		return err
	}
	payload := redisStepRecordPayload{
		RunID:      rec.RunID,
		StepIndex:  rec.StepIndex,
		StepName:   rec.StepName,
		Attempt:    rec.Attempt,
		Outcome:    string(rec.Outcome),
		Error:      rec.Error,
		Output:     out,
		StartedAt:  unixOrZero(rec.StartedAt),
		FinishedAt: unixOrZero(rec.FinishedAt),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}
	return r.client.RPush(ctx, r.keyRecords(rec.RunID), buf.Bytes()).Err()
}

type redisStepRecordPayload struct {
	RunID      string
	StepIndex  int
	StepName   string
	Attempt    int
	Outcome    string
	Error      string
	Output     []byte
	StartedAt  int64
	FinishedAt int64
}

func (r *RedisRunStore) StepRecords(ctx context.Context, runID string) ([]api.StepRecord, error) {
	items, err := r.client.LRange(ctx, r.keyRecords(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var recs []api.StepRecord
	for _, item := range items {
		var payload redisStepRecordPayload
		if err := gob.NewDecoder(bytes.NewReader([]byte(item))).Decode(&payload); err != nil {
			return nil, err
		}
		out, err := DecodeContext(payload.Output)
		if err != nil {
			return nil, err
		}
		recs = append(recs, api.StepRecord{
			RunID:      payload.RunID,
			StepIndex:  payload.StepIndex,
			StepName:   payload.StepName,
			Attempt:    payload.Attempt,
			Outcome:    api.Outcome(payload.Outcome),
			Error:      payload.Error,
			Output:     out,
			StartedAt:  timeOrZero(payload.StartedAt),
			FinishedAt: timeOrZero(payload.FinishedAt),
		})
	}
	return recs, nil
}

func (r *RedisRunStore) CancelRun(ctx context.Context, id string, now time.Time) (bool, error) {
	run, err := r.GetRun(ctx, id)
	if err != nil {
		return false, err
	}
	return r.cancel(ctx, run, now)
}

func (r *RedisRunStore) CancelActiveRun(ctx context.Context, workflowName, key string, now time.Time) (bool, error) {
	id, err := r.client.Get(ctx, r.keyActive(workflowName, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	run, err := r.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return false, nil
		}
		return false, err
	}
	return r.cancel(ctx, run, now)
}

func (r *RedisRunStore) cancel(ctx context.Context, run *api.Run, now time.Time) (bool, error) {
	if run.Status.Terminal() {
		return false, nil
	}
	// A live lease protects the executor; its final write stands.
	if run.Status == api.StatusRunning {
		if exists, err := r.client.Exists(ctx, r.keyLease(run.ID)).Result(); err != nil {
			return false, err
		} else if exists > 0 {
			return false, nil
		}
	}

	run.Status = api.StatusCancelled
	run.LeaseOwner = ""
	run.LeaseExpiresAt = time.Time{}
	run.UpdatedAt = now
	if err := r.saveRun(ctx, run); err != nil {
		return false, err
	}
	ak := r.keyActive(run.WorkflowName, run.IdempotencyKey)
	if id, err := r.client.Get(ctx, ak).Result(); err == nil && id == run.ID {
		r.client.Del(ctx, ak)
	}
	return true, nil
}

func (r *RedisRunStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.keyTerminal(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(olderThan.UnixNano()-1, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		run, err := r.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				r.client.ZRem(ctx, r.keyTerminal(), id)
				continue
			}
			return n, err
		}
		if !run.Status.Terminal() || !run.UpdatedAt.Before(olderThan) {
			continue
		}
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, r.keyRun(id), r.keyRecords(id), r.keyLease(id))
		pipe.ZRem(ctx, r.keyTerminal(), id)
		pipe.ZRem(ctx, r.keyDue(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *RedisRunStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
