package workflows

import (
	flowkit "github.com/linkup-social/flowkit"
)

// RegisterAll registers the four built-in workflows and their trigger
// bindings on the engine. Call once at startup, before publishing events.
func RegisterAll(eng flowkit.Engine, cs ContentStore, n Notifier, cfg Config) error {
	if err := StoryExpiry(cs, cfg).Register(eng); err != nil {
		return err
	}
	if err := ConnectionReminder(cs, n, cfg).Register(eng); err != nil {
		return err
	}
	if err := MessageDigest(cs, n, cfg).Register(eng); err != nil {
		return err
	}
	if err := UserLifecycle(cs, cfg).Register(eng); err != nil {
		return err
	}

	triggers := []flowkit.Trigger{
		StoryExpiryTrigger(),
		ConnectionReminderTrigger(),
		MessageDigestTrigger(cfg),
	}
	triggers = append(triggers, UserLifecycleTriggers()...)
	for _, t := range triggers {
		if err := eng.RegisterTrigger(t); err != nil {
			return err
		}
	}

	for _, c := range []flowkit.CancelTrigger{
		StoryDeletedCancel(),
		ConnectionAnsweredCancel(),
	} {
		if err := eng.RegisterCancelTrigger(c); err != nil {
			return err
		}
	}
	return nil
}
