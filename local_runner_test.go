package flowkit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalRunner_RunsWorkflowToCompletion(t *testing.T) {
	t.Parallel()

	runner := NewLocalRunner(EngineOptions{})

	var prepared, delivered atomic.Int64
	flow := New("two-steps").
		Step("prepare", func(ctx context.Context, rc Context) (Context, error) {
			prepared.Add(1)
			return Context{"greeting": "hello " + rc.String("name")}, nil
		}).
		Step("deliver", func(ctx context.Context, rc Context) (Context, error) {
			delivered.Add(1)
			return nil, nil
		})
	flow.MustRegister(runner.Engine)

	require.NoError(t, runner.Engine.RegisterTrigger(Trigger{
		On:       EventType("test.started"),
		Workflow: "two-steps",
		Key:      func(evt Event) string { return evt.PayloadString("id") },
		InitContext: func(evt Event) Context {
			return Context{"name": evt.PayloadString("name")}
		},
	}))

	require.NoError(t, runner.Start(2))
	defer runner.Stop()

	ctx := context.Background()
	runner.Engine.Publish(ctx, Event{
		Type:    EventType("test.started"),
		Payload: map[string]any{"id": "e1", "name": "world"},
	})

	require.Eventually(t, func() bool {
		runs, err := runner.Engine.ListRuns(ctx, RunListOptions{WorkflowName: "two-steps"})
		if err != nil || len(runs) != 1 {
			return false
		}
		return runs[0].Status == StatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	require.EqualValues(t, 1, prepared.Load())
	require.EqualValues(t, 1, delivered.Load())

	runs, err := runner.Engine.ListRuns(ctx, RunListOptions{WorkflowName: "two-steps"})
	require.NoError(t, err)
	require.Equal(t, "hello world", runs[0].Context.String("greeting"))
}

func TestLocalRunner_StartTwiceFails(t *testing.T) {
	t.Parallel()

	runner := NewLocalRunner(EngineOptions{})
	require.NoError(t, runner.Start(1))
	require.Error(t, runner.Start(1))

	runner.Stop()
	// Stop is idempotent.
	runner.Stop()

	require.NoError(t, runner.Start(1))
	runner.Stop()
}

func TestLocalRunner_SweepOnceWithManualClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	runner := NewLocalRunner(EngineOptions{Clock: clock})

	var fired atomic.Int64
	New("delayed").
		Step("wait", SleepUntilKey("at", time.Hour)).
		Step("fire", func(ctx context.Context, rc Context) (Context, error) {
			fired.Add(1)
			return nil, nil
		}).
		MustRegister(runner.Engine)

	require.NoError(t, runner.Engine.RegisterTrigger(Trigger{
		On:       EventType("test.delayed"),
		Workflow: "delayed",
		Key:      func(evt Event) string { return evt.PayloadString("id") },
		InitContext: func(evt Event) Context {
			return Context{"at": evt.PayloadTime("at")}
		},
	}))

	ctx := context.Background()
	runner.Engine.Publish(ctx, Event{
		Type:    EventType("test.delayed"),
		Payload: map[string]any{"id": "e1", "at": start},
	})

	// First pass parks the run; nothing fires until the clock moves.
	_, err := runner.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, fired.Load())

	clock.Advance(time.Hour + time.Second)
	for {
		n, err := runner.SweepOnce(ctx)
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	require.EqualValues(t, 1, fired.Load())
}
