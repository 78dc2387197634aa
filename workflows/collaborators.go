package workflows

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by ContentStore lookups when the referenced entity
// does not exist. Steps treat it as a normal outcome, never as a transient
// failure.
var ErrNotFound = errors.New("workflows: not found")

// UserProfile is the slice of a user record the workflows need for
// addressing notifications.
type UserProfile struct {
	ID       string
	FullName string
	Email    string
}

// ContentStore is the application-content capability the workflows consume.
// Implementations back it with the real datastore; tests use a fake. Every
// method may be invoked more than once for the same logical action, so
// mutations must be safe under duplicates.
type ContentStore interface {
	// StoryExists reports whether the story is still present.
	StoryExists(ctx context.Context, storyID string) (bool, error)

	// DeleteStory removes a story. Deleting an absent story is not an
	// error.
	DeleteStory(ctx context.Context, storyID string) error

	// ConnectionStatus returns the current status of a connection request
	// ("pending", "accepted", "rejected", ...). ErrNotFound when the
	// request no longer exists.
	ConnectionStatus(ctx context.Context, requestID string) (string, error)

	// CountUnseenMessages counts messages in the conversation sent at or
	// after since that the recipient has not seen.
	CountUnseenMessages(ctx context.Context, conversationID string, since time.Time) (int, error)

	// ApplyUserProfileChange upserts profile fields for a user.
	ApplyUserProfileChange(ctx context.Context, userID string, changes map[string]any) error

	// CascadeDeleteUserContent removes a deleted user's stories, messages
	// and connections.
	CascadeDeleteUserContent(ctx context.Context, userID string) error

	// User fetches the profile needed to address a notification.
	// ErrNotFound when the user does not exist.
	User(ctx context.Context, userID string) (*UserProfile, error)
}

// Notifier delivers a notification to a user. Delivery is at-least-once;
// transports that support it should use the run's idempotency key as their
// own dedupe key.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}
