package workflows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	flowkit "github.com/linkup-social/flowkit"
)

// MessageDigestWorkflow sends at most one unseen-message digest per
// conversation per digest window.
const MessageDigestWorkflow = "unseen-message-digest"

// digestBucket returns the UTC start of the window containing t. With the
// default 24h window this is the UTC day boundary.
func digestBucket(t time.Time, window time.Duration) time.Time {
	return t.UTC().Truncate(window)
}

// MessageDigest builds the digest workflow: park until the window closes,
// count the recipient's unseen messages in the window, and email a digest
// when the count is non-zero. The idempotency key pins one run per
// conversation per window, so a burst of messages folds into a single
// digest that counts all of them.
func MessageDigest(cs ContentStore, n Notifier, cfg Config) *flowkit.FlowBuilder {
	countUnseen := func(ctx context.Context, rc flowkit.Context) (flowkit.Context, error) {
		count, err := cs.CountUnseenMessages(ctx, rc.String("conversationId"), rc.Time("windowStart"))
		if err != nil {
			return nil, err
		}
		return flowkit.Context{"unseenCount": count}, nil
	}

	sendDigest := func(ctx context.Context, rc flowkit.Context) (flowkit.Context, error) {
		count := rc.Int("unseenCount")
		if count == 0 {
			// Everything was seen before the window closed.
			return nil, nil
		}
		recipient, err := cs.User(ctx, rc.String("recipientId"))
		if errors.Is(err, ErrNotFound) {
			return nil, flowkit.NewShortCircuitError("recipient no longer exists")
		}
		if err != nil {
			return nil, err
		}

		subject := fmt.Sprintf("You have %d unread messages", count)
		body := fmt.Sprintf(
			"Hi %s,\n\nYou have %d messages waiting in one of your conversations. "+
				"Open the app to catch up.\n",
			recipient.FullName, count)
		return nil, n.Send(ctx, recipient.Email, subject, body)
	}

	return flowkit.New(MessageDigestWorkflow).
		Step("waitForWindowEnd", flowkit.SleepUntilKey("windowStart", cfg.DigestWindow)).
		Step("countUnseen", countUnseen).
		StepWithRetry("sendDigestIfNonZero", sendDigest, cfg.Retry)
}

// MessageDigestTrigger keys runs by conversation and window start, so every
// message.sent inside one window maps to the same run and only the first
// creates it.
func MessageDigestTrigger(cfg Config) flowkit.Trigger {
	return flowkit.Trigger{
		On:       flowkit.EventMessageSent,
		Workflow: MessageDigestWorkflow,
		Key: func(evt flowkit.Event) string {
			bucket := digestBucket(evt.PayloadTime("sentAt"), cfg.DigestWindow)
			return evt.PayloadString("conversationId") + ":" + strconv.FormatInt(bucket.Unix(), 10)
		},
		InitContext: func(evt flowkit.Event) flowkit.Context {
			return flowkit.Context{
				"conversationId": evt.PayloadString("conversationId"),
				"recipientId":    evt.PayloadString("recipientId"),
				"senderId":       evt.PayloadString("senderId"),
				"windowStart":    digestBucket(evt.PayloadTime("sentAt"), cfg.DigestWindow),
			}
		},
	}
}
