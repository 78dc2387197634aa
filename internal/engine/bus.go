package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linkup-social/flowkit/internal/logger"
	"github.com/linkup-social/flowkit/pkg/api"
)

// Publish hands a domain event to the trigger registry. It is fire-and-forget
// by contract: the publishing request must never block on workflow execution
// and must never observe a workflow failure. Duplicate idempotency keys are
// silent no-ops; store errors are logged and swallowed. Durability begins at
// the Run Store, not here.
func (e *engineImpl) Publish(ctx context.Context, evt api.Event) {
	now := e.clock.Now()
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = now
	}

	for _, t := range e.registry.triggersFor(evt.Type) {
		key := t.Key(evt)
		if key == "" {
			logger.Warn("trigger produced empty idempotency key",
				zap.String("event", string(evt.Type)),
				zap.String("workflow", t.Workflow))
			continue
		}

		rc := api.Context{}
		if t.InitContext != nil {
			rc = t.InitContext(evt)
		}

		run := &api.Run{
			ID:             uuid.NewString(),
			WorkflowName:   t.Workflow,
			IdempotencyKey: key,
			Status:         api.StatusPending,
			NextRunAt:      now,
			Context:        rc,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		stored, created, err := e.store.CreateOrGetRun(ctx, run)
		if err != nil {
			logger.Error("create run failed",
				zap.String("event", string(evt.Type)),
				zap.String("workflow", t.Workflow),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if !created {
			// Effectively-exactly-once initiation under at-least-once
			// delivery: an active run already covers this key.
			logger.Debug("duplicate event for active run",
				zap.String("workflow", t.Workflow),
				zap.String("key", key),
				zap.String("run", stored.ID))
			continue
		}
		e.observer.OnRunCreated(ctx, stored)
	}

	for _, t := range e.registry.cancelsFor(evt.Type) {
		if t.When != nil && !t.When(evt) {
			continue
		}
		key := t.Key(evt)
		if key == "" {
			continue
		}
		cancelled, err := e.store.CancelActiveRun(ctx, t.Workflow, key, now)
		if err != nil {
			logger.Error("cancel run failed",
				zap.String("event", string(evt.Type)),
				zap.String("workflow", t.Workflow),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if cancelled {
			logger.Info("run cancelled by event",
				zap.String("event", string(evt.Type)),
				zap.String("workflow", t.Workflow),
				zap.String("key", key))
		}
	}
}
