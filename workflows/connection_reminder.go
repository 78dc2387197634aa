package workflows

import (
	"context"
	"errors"
	"fmt"

	flowkit "github.com/linkup-social/flowkit"
)

// ConnectionReminderWorkflow nudges the recipient of a connection request
// that has sat unanswered for the configured delay.
const ConnectionReminderWorkflow = "connection-reminder"

// ConnectionStatusPending is the only status the reminder fires for.
const ConnectionStatusPending = "pending"

// ConnectionReminder builds the reminder workflow: park until
// requestedAt + ReminderDelay, re-check that the request is still pending,
// then email the recipient. A request that was answered or withdrawn in the
// meantime ends the run as a successful no-op.
func ConnectionReminder(cs ContentStore, n Notifier, cfg Config) *flowkit.FlowBuilder {
	checkStillPending := func(ctx context.Context, rc flowkit.Context) (flowkit.Context, error) {
		status, err := cs.ConnectionStatus(ctx, rc.String("requestId"))
		if errors.Is(err, ErrNotFound) {
			return nil, flowkit.NewShortCircuitError("request withdrawn")
		}
		if err != nil {
			return nil, err
		}
		if status != ConnectionStatusPending {
			return nil, flowkit.NewShortCircuitError("request already " + status)
		}
		return nil, nil
	}

	sendReminder := func(ctx context.Context, rc flowkit.Context) (flowkit.Context, error) {
		recipient, err := cs.User(ctx, rc.String("recipientId"))
		if errors.Is(err, ErrNotFound) {
			return nil, flowkit.NewShortCircuitError("recipient no longer exists")
		}
		if err != nil {
			return nil, err
		}
		requesterName := rc.String("requesterId")
		if requester, err := cs.User(ctx, rc.String("requesterId")); err == nil {
			requesterName = requester.FullName
		}

		subject := fmt.Sprintf("%s is still waiting to connect", requesterName)
		body := fmt.Sprintf(
			"Hi %s,\n\n%s sent you a connection request that is still waiting for your answer. "+
				"Visit your pending requests to accept or decline.\n",
			recipient.FullName, requesterName)
		return nil, n.Send(ctx, recipient.Email, subject, body)
	}

	return flowkit.New(ConnectionReminderWorkflow).
		Step("waitForReminderWindow", flowkit.SleepUntilKey("requestedAt", cfg.ReminderDelay)).
		Step("checkStillPending", checkStillPending).
		StepWithRetry("sendReminderEmail", sendReminder, cfg.Retry)
}

// ConnectionReminderTrigger creates one reminder run per request, keyed by
// the request ID.
func ConnectionReminderTrigger() flowkit.Trigger {
	return flowkit.Trigger{
		On:       flowkit.EventConnectionRequested,
		Workflow: ConnectionReminderWorkflow,
		Key: func(evt flowkit.Event) string {
			return evt.PayloadString("requestId")
		},
		InitContext: func(evt flowkit.Event) flowkit.Context {
			return flowkit.Context{
				"requestId":   evt.PayloadString("requestId"),
				"requesterId": evt.PayloadString("requesterId"),
				"recipientId": evt.PayloadString("recipientId"),
				"requestedAt": evt.PayloadTime("requestedAt"),
			}
		},
	}
}

// ConnectionAnsweredCancel cancels the pending reminder as soon as the
// request leaves the pending state. The checkStillPending step covers the
// case where this event never arrives.
func ConnectionAnsweredCancel() flowkit.CancelTrigger {
	return flowkit.CancelTrigger{
		On:       flowkit.EventConnectionStatusChanged,
		Workflow: ConnectionReminderWorkflow,
		Key: func(evt flowkit.Event) string {
			return evt.PayloadString("requestId")
		},
		When: func(evt flowkit.Event) bool {
			return evt.PayloadString("status") != ConnectionStatusPending
		},
	}
}
