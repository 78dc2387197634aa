package flowkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/linkup-social/flowkit/pkg/worker"
)

// LocalRunner bundles an in-memory Engine and a worker.Pool to provide a
// simple single-process runner for development and tests.
//
// Typical usage:
//
//	runner := flowkit.NewLocalRunner(flowkit.EngineOptions{})
//	flow := flowkit.New("my-flow").Step(...)
//	flow.MustRegister(runner.Engine)
//
//	_ = runner.Start(2)
//	flowkit.Publish(ctx, runner.Engine, evt)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Pool drives the engine's scheduler. Nil until Start.
	Pool *worker.Pool

	mu      sync.Mutex
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine.
// Pass a ManualClock in opts to drive time from a test.
func NewLocalRunner(opts EngineOptions) *LocalRunner {
	return &LocalRunner{
		Engine: NewInMemoryEngine(opts),
	}
}

// Start launches a worker pool with the given concurrency.
//
// If Start is called again without Stop, it returns an error.
func (r *LocalRunner) Start(concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("flowkit: LocalRunner already started")
	}
	r.Pool = worker.NewPool(r.Engine, worker.Config{
		Concurrency:  concurrency,
		PollInterval: 10 * time.Millisecond,
	})
	if err := r.Pool.Start(); err != nil {
		return err
	}
	r.running = true
	return nil
}

// Stop shuts the worker pool down and waits for it to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.Pool.Stop()
	r.running = false
}

// SweepOnce runs a single scheduler pass synchronously, without starting the
// pool. Handy in tests paired with a ManualClock: advance the clock, then
// SweepOnce until it reports zero.
func (r *LocalRunner) SweepOnce(ctx context.Context) (int, error) {
	return r.Engine.Sweep(ctx, "local")
}
