package workflows

import (
	"context"
	"fmt"
	"strconv"

	flowkit "github.com/linkup-social/flowkit"
)

// UserLifecycleWorkflow mirrors user lifecycle events into the content
// store: profile upserts for created/updated, a content cascade for
// deleted. Single step, no delay, retried on transient failure only.
const UserLifecycleWorkflow = "user-lifecycle-sync"

// Lifecycle operations carried in the run context.
const (
	UserOpCreated = "created"
	UserOpUpdated = "updated"
	UserOpDeleted = "deleted"
)

// UserLifecycle builds the user-lifecycle-sync workflow.
func UserLifecycle(cs ContentStore, cfg Config) *flowkit.FlowBuilder {
	apply := func(ctx context.Context, rc flowkit.Context) (flowkit.Context, error) {
		userID := rc.String("userId")
		switch op := rc.String("op"); op {
		case UserOpCreated, UserOpUpdated:
			changes, _ := rc["changes"].(map[string]any)
			return nil, cs.ApplyUserProfileChange(ctx, userID, changes)
		case UserOpDeleted:
			return nil, cs.CascadeDeleteUserContent(ctx, userID)
		default:
			return nil, flowkit.NewCancelRunError(fmt.Sprintf("unknown lifecycle op %q", op))
		}
	}

	return flowkit.New(UserLifecycleWorkflow).
		StepWithRetry("applyLifecycleChange", apply, cfg.Retry)
}

// userLifecycleTrigger keys each run by user, operation, and event time, so
// a redelivered event folds into the existing run while distinct updates to
// the same user each get their own.
func userLifecycleTrigger(on flowkit.EventType, op, payloadKey string) flowkit.Trigger {
	return flowkit.Trigger{
		On:       on,
		Workflow: UserLifecycleWorkflow,
		Key: func(evt flowkit.Event) string {
			userID := evt.PayloadString("userId")
			if userID == "" {
				return ""
			}
			return "user:" + userID + ":" + op + ":" + strconv.FormatInt(evt.OccurredAt.Unix(), 10)
		},
		InitContext: func(evt flowkit.Event) flowkit.Context {
			rc := flowkit.Context{
				"userId": evt.PayloadString("userId"),
				"op":     op,
			}
			if payloadKey != "" {
				if changes, ok := evt.Payload[payloadKey].(map[string]any); ok {
					rc["changes"] = changes
				}
			}
			return rc
		},
	}
}

// UserLifecycleTriggers returns the three lifecycle bindings.
func UserLifecycleTriggers() []flowkit.Trigger {
	return []flowkit.Trigger{
		userLifecycleTrigger(flowkit.EventUserCreated, UserOpCreated, "profile"),
		userLifecycleTrigger(flowkit.EventUserUpdated, UserOpUpdated, "changes"),
		userLifecycleTrigger(flowkit.EventUserDeleted, UserOpDeleted, ""),
	}
}
