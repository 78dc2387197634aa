package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/linkup-social/flowkit/internal/logger"
	"github.com/linkup-social/flowkit/internal/persistence"
	"github.com/linkup-social/flowkit/pkg/api"
)

// Sweep performs one scheduler pass on behalf of owner: fetch due runs in
// earliest-deadline order, lease each, and advance it as far as it can go
// right now. A failed or contended run never stalls progress on the others.
func (e *engineImpl) Sweep(ctx context.Context, owner string) (int, error) {
	due, err := e.store.DueRuns(ctx, e.clock.Now(), e.batchSize)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, run := range due {
		select {
		case <-ctx.Done():
			return advanced, ctx.Err()
		default:
		}

		ok, err := e.advanceRun(ctx, owner, run.ID)
		if err != nil {
			logger.Error("advancing run failed",
				zap.String("run", run.ID),
				zap.String("workflow", run.WorkflowName),
				zap.Error(err))
			continue
		}
		if ok {
			advanced++
		}
	}
	return advanced, nil
}

// advanceRun leases one run and executes steps until the run parks, finishes,
// or needs a future deadline. Returns false when the lease was not acquired
// (another worker holds it; a normal skip, not an error).
func (e *engineImpl) advanceRun(ctx context.Context, owner, runID string) (bool, error) {
	now := e.clock.Now()
	run, acquired, reclaimed, err := e.store.AcquireLease(ctx, runID, owner, e.leaseTTL, now)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return false, nil
		}
		return false, err
	}
	if !acquired {
		return false, nil
	}

	def, err := e.registry.workflow(run.WorkflowName)
	if err != nil {
		run.Status = api.StatusFailed
		run.LastError = "workflow not registered: " + run.WorkflowName
		run.UpdatedAt = now
		e.observer.OnRunFailed(ctx, run, err)
		return true, e.writeRun(ctx, run, owner)
	}

	if reclaimed {
		// Taken over from a crashed worker: a step may have completed
		// without its advancement being persisted. Replay-safety check:
		// a step with a Success record is never re-executed.
		if err := e.fastForward(ctx, run); err != nil {
			return true, err
		}
	}

	for {
		if run.CurrentStep >= len(def.Steps) {
			run.Status = api.StatusSucceeded
			run.LastError = ""
			run.UpdatedAt = e.clock.Now()
			e.observer.OnRunSucceeded(ctx, run)
			return true, e.writeRun(ctx, run, owner)
		}

		cont, err := e.executeStep(ctx, owner, run, def)
		if err != nil || !cont {
			return true, err
		}
	}
}

// fastForward merges already-recorded successes for the current step so a
// reclaimed run resumes exactly where the interrupted worker left off.
func (e *engineImpl) fastForward(ctx context.Context, run *api.Run) error {
	recs, err := e.store.StepRecords(ctx, run.ID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.Outcome == api.OutcomeSuccess && rec.StepIndex == run.CurrentStep {
			run.Context = run.Context.Merge(rec.Output)
			run.CurrentStep++
			run.Attempt = 0
		}
	}
	return nil
}

// executeStep runs steps[run.CurrentStep] once and persists the outcome.
// It returns cont=true only when the run may continue immediately under the
// same lease.
func (e *engineImpl) executeStep(ctx context.Context, owner string, run *api.Run, def api.WorkflowDefinition) (bool, error) {
	idx := run.CurrentStep
	step := def.Steps[idx]
	attempt := run.Attempt + 1

	now := e.clock.Now()
	stepCtx := api.WithNow(ctx, now)

	e.observer.OnStepStart(stepCtx, run, step.Name, idx)
	out, stepErr := step.Fn(stepCtx, run.Context.Clone())
	finished := e.clock.Now()
	took := finished.Sub(now)

	if stepErr != nil {
		if until, ok := api.SleepDeadline(stepErr); ok {
			// Not an attempt: the run parks and the step re-executes once
			// the deadline passes.
			run.Status = api.StatusSleeping
			run.NextRunAt = until
			run.UpdatedAt = finished
			return false, e.writeRun(ctx, run, owner)
		}

		e.observer.OnStepCompleted(stepCtx, run, step.Name, idx, stepErr, took)

		if reason, ok := api.IsShortCircuit(stepErr); ok {
			// Permanent outcome: the remaining steps are meaningless and
			// the run finishes as a successful no-op.
			if err := e.record(ctx, run, step, idx, attempt, api.OutcomeSuccess, reason, nil, now, finished); err != nil {
				return false, err
			}
			run.CurrentStep = idx + 1
			run.Attempt = 0
			run.Status = api.StatusSucceeded
			run.LastError = ""
			run.UpdatedAt = finished
			e.observer.OnRunSucceeded(ctx, run)
			return false, e.writeRun(ctx, run, owner)
		}

		if reason, ok := api.IsCancelRun(stepErr); ok {
			if err := e.record(ctx, run, step, idx, attempt, api.OutcomeSuccess, reason, nil, now, finished); err != nil {
				return false, err
			}
			run.Status = api.StatusCancelled
			run.UpdatedAt = finished
			e.observer.OnRunCancelled(ctx, run)
			return false, e.writeRun(ctx, run, owner)
		}

		// Transient failure: retry with exponential backoff until the
		// step's attempts are exhausted.
		run.Attempt = attempt
		run.LastError = stepErr.Error()
		policy := e.retryFor(step)

		if attempt >= policy.MaxAttempts {
			if err := e.record(ctx, run, step, idx, attempt, api.OutcomeFailure, stepErr.Error(), nil, now, finished); err != nil {
				return false, err
			}
			run.Status = api.StatusFailed
			run.UpdatedAt = finished
			e.observer.OnRunFailed(ctx, run, stepErr)
			return false, e.writeRun(ctx, run, owner)
		}

		if err := e.record(ctx, run, step, idx, attempt, api.OutcomeRetrying, stepErr.Error(), nil, now, finished); err != nil {
			return false, err
		}
		run.Status = api.StatusPending
		run.NextRunAt = finished.Add(policy.Delay(attempt))
		run.UpdatedAt = finished
		return false, e.writeRun(ctx, run, owner)
	}

	e.observer.OnStepCompleted(stepCtx, run, step.Name, idx, nil, took)

	if err := e.record(ctx, run, step, idx, attempt, api.OutcomeSuccess, "", out, now, finished); err != nil {
		return false, err
	}

	run.Context = run.Context.Merge(out)
	run.CurrentStep = idx + 1
	run.Attempt = 0
	run.LastError = ""
	run.UpdatedAt = finished

	if run.CurrentStep >= len(def.Steps) {
		run.Status = api.StatusSucceeded
		e.observer.OnRunSucceeded(ctx, run)
		return false, e.writeRun(ctx, run, owner)
	}

	if step.DelayBeforeNext > 0 {
		run.Status = api.StatusSleeping
		run.NextRunAt = finished.Add(step.DelayBeforeNext)
		return false, e.writeRun(ctx, run, owner)
	}

	// Eligible for immediate continuation under the same lease; persist
	// the advancement first so a crash resumes from the right step.
	run.Status = api.StatusRunning
	run.NextRunAt = finished
	if err := e.writeRun(ctx, run, owner); err != nil {
		return false, err
	}
	return true, nil
}

func (e *engineImpl) record(ctx context.Context, run *api.Run, step api.StepDefinition, idx, attempt int, outcome api.Outcome, errMsg string, output api.Context, started, finished time.Time) error {
	rec := api.StepRecord{
		RunID:      run.ID,
		StepIndex:  idx,
		StepName:   step.Name,
		Attempt:    attempt,
		Outcome:    outcome,
		Error:      errMsg,
		Output:     output,
		StartedAt:  started,
		FinishedAt: finished,
	}
	return e.store.AppendStepRecord(ctx, rec)
}

// writeRun persists the run via the lease-guarded update. A lost lease means
// the run was reclaimed or cancelled underneath us; the other writer's state
// stands and this worker simply stops.
func (e *engineImpl) writeRun(ctx context.Context, run *api.Run, owner string) error {
	err := e.store.UpdateRun(ctx, run, owner)
	if errors.Is(err, persistence.ErrLeaseNotHeld) {
		logger.Debug("lease lost while advancing run",
			zap.String("run", run.ID),
			zap.String("owner", owner))
		return nil
	}
	return err
}
