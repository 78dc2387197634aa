package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBasicMetrics_Counters(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetrics{}
	run := &Run{ID: "r1", WorkflowName: "wf"}

	m.OnRunCreated(ctx, run)
	m.OnRunCreated(ctx, run)
	m.OnRunSucceeded(ctx, run)
	m.OnRunFailed(ctx, run, errors.New("boom"))
	m.OnRunCancelled(ctx, run)
	m.OnStepCompleted(ctx, run, "s", 0, nil, time.Millisecond)
	m.OnStepCompleted(ctx, run, "s", 0, errors.New("boom"), time.Millisecond)

	snap := m.Snapshot()
	if snap.RunsCreated != 2 {
		t.Fatalf("RunsCreated = %d, want 2", snap.RunsCreated)
	}
	if snap.RunsSucceeded != 1 || snap.RunsFailed != 1 || snap.RunsCancelled != 1 {
		t.Fatalf("terminal counters = %+v", snap)
	}
	if snap.StepsExecuted != 2 || snap.StepsFailed != 1 {
		t.Fatalf("step counters = %+v", snap)
	}
}

type countingObserver struct {
	NoopObserver
	created int
	failed  int
}

func (c *countingObserver) OnRunCreated(ctx context.Context, run *Run)           { c.created++ }
func (c *countingObserver) OnRunFailed(ctx context.Context, run *Run, err error) { c.failed++ }

func TestCompositeObserver_FansOutAndSkipsNil(t *testing.T) {
	ctx := context.Background()
	a := &countingObserver{}
	b := &countingObserver{}

	obs := NewCompositeObserver(a, nil, b)
	run := &Run{ID: "r1"}

	obs.OnRunCreated(ctx, run)
	obs.OnRunFailed(ctx, run, errors.New("boom"))

	for _, o := range []*countingObserver{a, b} {
		if o.created != 1 || o.failed != 1 {
			t.Fatalf("observer got created=%d failed=%d, want 1/1", o.created, o.failed)
		}
	}
}

func TestLoggingObserver_NilLoggerIsSafe(t *testing.T) {
	ctx := context.Background()
	o := NewLoggingObserver(nil)
	run := &Run{ID: "r1", WorkflowName: "wf"}

	o.OnRunCreated(ctx, run)
	o.OnStepStart(ctx, run, "s", 0)
	o.OnStepCompleted(ctx, run, "s", 0, errors.New("boom"), time.Millisecond)
	o.OnRunFailed(ctx, run, errors.New("boom"))
	o.OnRunSucceeded(ctx, run)
	o.OnRunCancelled(ctx, run)
}
