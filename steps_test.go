package flowkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linkup-social/flowkit/pkg/api"
)

func TestSleepUntilKey(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := SleepUntilKey("createdAt", 24*time.Hour)
	rc := Context{"createdAt": createdAt}

	t.Run("parks before the deadline", func(t *testing.T) {
		ctx := api.WithNow(context.Background(), createdAt.Add(time.Hour))
		_, err := step(ctx, rc)
		until, ok := api.SleepDeadline(err)
		require.True(t, ok)
		require.Equal(t, createdAt.Add(24*time.Hour), until)
	})

	t.Run("completes at the deadline", func(t *testing.T) {
		ctx := api.WithNow(context.Background(), createdAt.Add(24*time.Hour))
		out, err := step(ctx, rc)
		require.NoError(t, err)
		require.Nil(t, out)
	})

	t.Run("missing key is a permanent failure, not a sleep", func(t *testing.T) {
		_, err := step(context.Background(), Context{})
		require.Error(t, err)
		_, isSleep := api.SleepDeadline(err)
		require.False(t, isSleep)
	})
}

func TestSleepUntil_CustomDeadline(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	step := SleepUntil(func(rc Context) time.Time {
		return rc.Time("windowStart").Add(15 * time.Minute)
	})

	ctx := api.WithNow(context.Background(), base)
	_, err := step(ctx, Context{"windowStart": base})
	until, ok := api.SleepDeadline(err)
	require.True(t, ok)
	require.Equal(t, base.Add(15*time.Minute), until)

	// A zero deadline means the context was never seeded correctly.
	_, err = step(ctx, Context{})
	require.Error(t, err)
	_, isSleep := api.SleepDeadline(err)
	require.False(t, isSleep)
}
