package flowkit

import (
	"context"
	"fmt"
	"time"

	"github.com/linkup-social/flowkit/pkg/api"
)

// SleepUntil returns a step that parks the run until the deadline computed by
// fn from the run context. The deadline is derived from immutable context
// values, so re-executions after a crash or retry land on the same instant.
// Once the deadline has passed the step completes without output.
func SleepUntil(fn func(rc Context) time.Time) StepFunc {
	return func(ctx context.Context, rc Context) (Context, error) {
		deadline := fn(rc)
		if deadline.IsZero() {
			return nil, fmt.Errorf("sleep deadline is zero")
		}
		if api.Now(ctx).Before(deadline) {
			return nil, api.NewSleepUntilError(deadline)
		}
		return nil, nil
	}
}

// SleepUntilKey returns a step that parks the run until the timestamp stored
// under key in the run context, plus offset. A missing or unparseable
// timestamp is a permanent mistake in the trigger wiring, not a transient
// condition, so it fails the step.
func SleepUntilKey(key string, offset time.Duration) StepFunc {
	return func(ctx context.Context, rc Context) (Context, error) {
		base := rc.Time(key)
		if base.IsZero() {
			return nil, fmt.Errorf("context key %q is not a timestamp", key)
		}
		deadline := base.Add(offset)
		if api.Now(ctx).Before(deadline) {
			return nil, api.NewSleepUntilError(deadline)
		}
		return nil, nil
	}
}
