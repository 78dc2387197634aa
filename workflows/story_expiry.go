package workflows

import (
	"context"

	flowkit "github.com/linkup-social/flowkit"
)

// StoryExpiryWorkflow is the name of the workflow that deletes a story once
// its TTL has passed.
const StoryExpiryWorkflow = "story-expiry"

// StoryExpiry builds the story-expiry workflow: park until
// createdAt + StoryTTL, then delete the story if it still exists. The
// deadline derives from the immutable createdAt in the run context, so
// retries and crash replays always land on the same instant.
func StoryExpiry(cs ContentStore, cfg Config) *flowkit.FlowBuilder {
	deleteStory := func(ctx context.Context, rc flowkit.Context) (flowkit.Context, error) {
		storyID := rc.String("storyId")
		exists, err := cs.StoryExists(ctx, storyID)
		if err != nil {
			return nil, err
		}
		if !exists {
			// Already gone: a prior partial run or a manual deletion.
			return nil, nil
		}
		return nil, cs.DeleteStory(ctx, storyID)
	}

	return flowkit.New(StoryExpiryWorkflow).
		Step("waitForExpiry", flowkit.SleepUntilKey("createdAt", cfg.StoryTTL)).
		StepWithRetry("deleteStoryIfStillPresent", deleteStory, cfg.Retry)
}

// StoryExpiryTrigger creates an expiry run per story, keyed by the story ID.
func StoryExpiryTrigger() flowkit.Trigger {
	return flowkit.Trigger{
		On:       flowkit.EventStoryCreated,
		Workflow: StoryExpiryWorkflow,
		Key: func(evt flowkit.Event) string {
			return evt.PayloadString("storyId")
		},
		InitContext: func(evt flowkit.Event) flowkit.Context {
			return flowkit.Context{
				"storyId":   evt.PayloadString("storyId"),
				"authorId":  evt.PayloadString("authorId"),
				"createdAt": evt.PayloadTime("createdAt"),
			}
		},
	}
}

// StoryDeletedCancel cancels the pending expiry run when the owner deletes
// the story before it expires.
func StoryDeletedCancel() flowkit.CancelTrigger {
	return flowkit.CancelTrigger{
		On:       flowkit.EventStoryDeleted,
		Workflow: StoryExpiryWorkflow,
		Key: func(evt flowkit.Event) string {
			return evt.PayloadString("storyId")
		},
	}
}
