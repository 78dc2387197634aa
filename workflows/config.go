package workflows

import (
	"time"

	flowkit "github.com/linkup-social/flowkit"
)

// Config holds the tunables for the built-in workflows. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// StoryTTL is how long a story lives before the expiry workflow
	// deletes it.
	StoryTTL time.Duration

	// ReminderDelay is how long a connection request may sit unanswered
	// before the requester's reminder goes out. Measured from the
	// triggering event's requestedAt, not from run creation.
	ReminderDelay time.Duration

	// DigestWindow is the width of the unseen-message digest bucket. At
	// most one digest is sent per conversation per window.
	DigestWindow time.Duration

	// Retry applies to steps with external side effects.
	Retry flowkit.RetryPolicy
}

// DefaultConfig returns the production defaults: 24h story TTL, 24h reminder
// delay, daily digest buckets, and three attempts with 30s-to-1h backoff.
func DefaultConfig() Config {
	return Config{
		StoryTTL:      24 * time.Hour,
		ReminderDelay: 24 * time.Hour,
		DigestWindow:  24 * time.Hour,
		Retry:         flowkit.Retry(3).WithExponentialBackoff(30*time.Second, time.Hour).Policy(),
	}
}
