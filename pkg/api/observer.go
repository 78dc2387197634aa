package api

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Observer receives callbacks from the scheduler for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay run execution. Terminal failures are
// surfaced here and nowhere else: they never propagate to the event
// publisher.
type Observer interface {
	// OnRunCreated is called once when the bus creates a new run for an
	// event. Reused runs (duplicate idempotency key) do not fire it.
	OnRunCreated(ctx context.Context, run *Run)

	// OnRunSucceeded is called when a run reaches StatusSucceeded, including
	// short-circuited no-op completions.
	OnRunSucceeded(ctx context.Context, run *Run)

	// OnRunFailed is called when a run exhausts retries and transitions to
	// StatusFailed.
	OnRunFailed(ctx context.Context, run *Run, err error)

	// OnRunCancelled is called when a run transitions to StatusCancelled,
	// whether externally or by a step.
	OnRunCancelled(ctx context.Context, run *Run)

	// OnStepStart is called before invoking a step function.
	OnStepStart(ctx context.Context, run *Run, stepName string, stepIndex int)

	// OnStepCompleted is called after a step function returns, for both
	// successes and failures (err != nil). Sleep requests do not fire it.
	OnStepCompleted(ctx context.Context, run *Run, stepName string, stepIndex int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunCreated(ctx context.Context, run *Run)             {}
func (NoopObserver) OnRunSucceeded(ctx context.Context, run *Run)           {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *Run, err error)   {}
func (NoopObserver) OnRunCancelled(ctx context.Context, run *Run)           {}
func (NoopObserver) OnStepStart(ctx context.Context, run *Run, name string, idx int) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *Run, name string, idx int, err error, d time.Duration) {
}

// LoggingObserver logs run and step lifecycle transitions.
type LoggingObserver struct {
	log *zap.Logger
}

// NewLoggingObserver creates a LoggingObserver. A nil logger falls back to
// zap's no-op logger.
func NewLoggingObserver(log *zap.Logger) *LoggingObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingObserver{log: log}
}

func (o *LoggingObserver) OnRunCreated(ctx context.Context, run *Run) {
	o.log.Info("run created",
		zap.String("workflow", run.WorkflowName),
		zap.String("run", run.ID),
		zap.String("key", run.IdempotencyKey))
}

func (o *LoggingObserver) OnRunSucceeded(ctx context.Context, run *Run) {
	o.log.Info("run succeeded",
		zap.String("workflow", run.WorkflowName),
		zap.String("run", run.ID))
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	o.log.Error("run failed",
		zap.String("workflow", run.WorkflowName),
		zap.String("run", run.ID),
		zap.Int("step", run.CurrentStep),
		zap.Error(err))
}

func (o *LoggingObserver) OnRunCancelled(ctx context.Context, run *Run) {
	o.log.Info("run cancelled",
		zap.String("workflow", run.WorkflowName),
		zap.String("run", run.ID))
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *Run, name string, idx int) {
	o.log.Debug("step start",
		zap.String("run", run.ID),
		zap.String("step", name),
		zap.Int("index", idx))
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *Run, name string, idx int, err error, d time.Duration) {
	if err != nil {
		o.log.Warn("step failed",
			zap.String("run", run.ID),
			zap.String("step", name),
			zap.Int("index", idx),
			zap.Int("attempt", run.Attempt),
			zap.Duration("took", d),
			zap.Error(err))
		return
	}
	o.log.Debug("step completed",
		zap.String("run", run.ID),
		zap.String("step", name),
		zap.Int("index", idx),
		zap.Duration("took", d))
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunCreated(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCreated(ctx, run)
	}
}

func (c *CompositeObserver) OnRunSucceeded(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunSucceeded(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnRunCancelled(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCancelled(ctx, run)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *Run, name string, idx int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, name, idx)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *Run, name string, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, name, idx, err, d)
	}
}

// BasicMetrics is an Observer that keeps simple atomic counters.
type BasicMetrics struct {
	runsCreated    atomic.Int64
	runsSucceeded  atomic.Int64
	runsFailed     atomic.Int64
	runsCancelled  atomic.Int64
	stepsExecuted  atomic.Int64
	stepsFailed    atomic.Int64
}

// BasicMetricsSnapshot is a point-in-time copy of the counters.
type BasicMetricsSnapshot struct {
	RunsCreated   int64
	RunsSucceeded int64
	RunsFailed    int64
	RunsCancelled int64
	StepsExecuted int64
	StepsFailed   int64
}

func (m *BasicMetrics) OnRunCreated(ctx context.Context, run *Run)           { m.runsCreated.Add(1) }
func (m *BasicMetrics) OnRunSucceeded(ctx context.Context, run *Run)         { m.runsSucceeded.Add(1) }
func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *Run, err error) { m.runsFailed.Add(1) }
func (m *BasicMetrics) OnRunCancelled(ctx context.Context, run *Run)         { m.runsCancelled.Add(1) }
func (m *BasicMetrics) OnStepStart(ctx context.Context, run *Run, name string, idx int) {
}
func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run *Run, name string, idx int, err error, d time.Duration) {
	m.stepsExecuted.Add(1)
	if err != nil {
		m.stepsFailed.Add(1)
	}
}

// Snapshot returns the current counter values.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		RunsCreated:   m.runsCreated.Load(),
		RunsSucceeded: m.runsSucceeded.Load(),
		RunsFailed:    m.runsFailed.Load(),
		RunsCancelled: m.runsCancelled.Load(),
		StepsExecuted: m.stepsExecuted.Load(),
		StepsFailed:   m.stepsFailed.Load(),
	}
}
