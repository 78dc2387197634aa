package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkup-social/flowkit/pkg/api"
)

// redisStore connects to the Redis named by FLOWKIT_TEST_REDIS_ADDR, or
// skips the test. The shared contract tests in store_test.go cover memory
// and SQLite unconditionally; this file runs the same scenarios against
// Redis when one is available, e.g.
//
//	FLOWKIT_TEST_REDIS_ADDR=localhost:6379 go test ./internal/persistence/
func redisStore(t *testing.T) *RedisRunStore {
	t.Helper()

	addr := os.Getenv("FLOWKIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLOWKIT_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s not reachable: %v", addr, err)
	}

	prefix := "flowkit-test:" + t.Name() + ":"
	t.Cleanup(func() {
		keys, err := client.Keys(context.Background(), prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			_ = client.Del(context.Background(), keys...).Err()
		}
	})
	return NewRedisRunStore(client, prefix)
}

func TestRedisStore_CreateLeaseUpdateRoundTrip(t *testing.T) {
	store := redisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	stored, created, err := store.CreateOrGetRun(ctx, newRun("r1", "wf", "k1", now))
	if err != nil {
		t.Fatalf("CreateOrGetRun failed: %v", err)
	}
	if !created {
		t.Fatal("first create must report created")
	}

	reused, dup, err := store.CreateOrGetRun(ctx, newRun("r2", "wf", "k1", now))
	if err != nil {
		t.Fatalf("duplicate CreateOrGetRun failed: %v", err)
	}
	if dup || reused.ID != stored.ID {
		t.Fatal("duplicate idempotency key must reuse the active run")
	}

	leased, acquired, reclaimed, err := store.AcquireLease(ctx, stored.ID, "w1", 2*time.Minute, now)
	if err != nil || !acquired || reclaimed {
		t.Fatalf("AcquireLease = %v, %v, %v", acquired, reclaimed, err)
	}

	leased.Status = api.StatusSucceeded
	leased.CurrentStep = 1
	leased.UpdatedAt = now
	if err := store.UpdateRun(ctx, leased, "w1"); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, stored.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != api.StatusSucceeded || got.CurrentStep != 1 {
		t.Fatalf("run after update = %s step %d", got.Status, got.CurrentStep)
	}

	// Terminal run frees the key for a fresh run.
	_, createdAgain, err := store.CreateOrGetRun(ctx, newRun("r3", "wf", "k1", now))
	if err != nil {
		t.Fatalf("CreateOrGetRun after terminal failed: %v", err)
	}
	if !createdAgain {
		t.Fatal("terminal run must not block a new run on the same key")
	}
}

func TestRedisStore_DueRunsAndStepRecords(t *testing.T) {
	store := redisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if _, _, err := store.CreateOrGetRun(ctx, newRun("due", "wf", "due-key", now.Add(-time.Minute))); err != nil {
		t.Fatalf("CreateOrGetRun failed: %v", err)
	}
	if _, _, err := store.CreateOrGetRun(ctx, newRun("future", "wf", "future-key", now.Add(time.Hour))); err != nil {
		t.Fatalf("CreateOrGetRun failed: %v", err)
	}

	due, err := store.DueRuns(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueRuns failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("due runs = %v", due)
	}

	rec := api.StepRecord{
		RunID:      "due",
		StepIndex:  0,
		StepName:   "first",
		Attempt:    1,
		Outcome:    api.OutcomeSuccess,
		Output:     api.Context{"count": 3},
		StartedAt:  now,
		FinishedAt: now,
	}
	if err := store.AppendStepRecord(ctx, rec); err != nil {
		t.Fatalf("AppendStepRecord failed: %v", err)
	}

	records, err := store.StepRecords(ctx, "due")
	if err != nil {
		t.Fatalf("StepRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].StepName != "first" || records[0].Output.Int("count") != 3 {
		t.Fatalf("records = %+v", records)
	}
}
