package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkup-social/flowkit/internal/engine"
	"github.com/linkup-social/flowkit/pkg/api"
)

func TestPool_AdvancesDueRuns(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewInMemoryEngine(api.EngineOptions{})

	var executed atomic.Int32
	err := eng.RegisterWorkflow(api.WorkflowDefinition{
		Name: "pool-test",
		Steps: []api.StepDefinition{
			{
				Name: "work",
				Fn: func(ctx context.Context, rc api.Context) (api.Context, error) {
					executed.Add(1)
					return nil, nil
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	err = eng.RegisterTrigger(api.Trigger{
		On:       api.EventType("pool.test"),
		Workflow: "pool-test",
		Key:      func(evt api.Event) string { return evt.PayloadString("id") },
	})
	if err != nil {
		t.Fatalf("RegisterTrigger failed: %v", err)
	}

	pool := NewPool(eng, Config{
		Concurrency:  3,
		PollInterval: 5 * time.Millisecond,
	})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	const n = 10
	for i := 0; i < n; i++ {
		eng.Publish(ctx, api.Event{
			Type:    api.EventType("pool.test"),
			Payload: map[string]any{"id": string(rune('a' + i))},
		})
	}

	deadline := time.Now().Add(5 * time.Second)
	for executed.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("pool advanced %d runs before timeout, want %d", executed.Load(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Lease exclusion: each run executed exactly once despite 3 loops.
	time.Sleep(50 * time.Millisecond)
	if got := executed.Load(); got != n {
		t.Fatalf("executed %d times, want exactly %d", got, n)
	}

	runs, err := eng.ListRuns(ctx, api.RunListOptions{Status: api.StatusSucceeded})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != n {
		t.Fatalf("succeeded runs = %d, want %d", len(runs), n)
	}
}

func TestPool_StartStopLifecycle(t *testing.T) {
	eng := engine.NewInMemoryEngine(api.EngineOptions{})
	pool := NewPool(eng, Config{Concurrency: 1, PollInterval: 5 * time.Millisecond})

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := pool.Start(); err == nil {
		t.Fatal("second Start should fail while running")
	}

	pool.Stop()
	pool.Stop() // idempotent

	if err := pool.Start(); err != nil {
		t.Fatalf("restart after Stop failed: %v", err)
	}
	pool.Stop()
}

func TestPool_RetentionPurgesTerminalRuns(t *testing.T) {
	ctx := context.Background()
	clock := api.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	eng := engine.NewInMemoryEngine(api.EngineOptions{Clock: clock})

	err := eng.RegisterWorkflow(api.WorkflowDefinition{
		Name: "short-lived",
		Steps: []api.StepDefinition{
			{Name: "work", Fn: func(ctx context.Context, rc api.Context) (api.Context, error) {
				return nil, nil
			}},
		},
	})
	if err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	err = eng.RegisterTrigger(api.Trigger{
		On:       api.EventType("short.lived"),
		Workflow: "short-lived",
		Key:      func(evt api.Event) string { return evt.PayloadString("id") },
	})
	if err != nil {
		t.Fatalf("RegisterTrigger failed: %v", err)
	}

	eng.Publish(ctx, api.Event{
		Type:    api.EventType("short.lived"),
		Payload: map[string]any{"id": "r1"},
	})
	if _, err := eng.Sweep(ctx, "w1"); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	// The run finished at the manual clock's instant, far in the past
	// relative to the purge loop's wall-clock cutoff.
	pool := NewPool(eng, Config{
		Concurrency:   1,
		PollInterval:  time.Minute, // keep sweeps out of the way
		Retention:     time.Hour,
		PurgeInterval: 5 * time.Millisecond,
	})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		runs, err := eng.ListRuns(ctx, api.RunListOptions{WorkflowName: "short-lived"})
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("run not purged before timeout, %d remaining", len(runs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
