package flowkit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"
)

// TestSQLiteEngine_DurableAcrossRestart shows that a parked run survives a
// simulated process restart, assuming workflows and triggers are
// re-registered on startup (definitions are in-memory only).
func TestSQLiteEngine_DurableAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dbPath := filepath.Join(t.TempDir(), "flowkit.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	register := func(eng Engine, deleted *int) {
		New("story-expiry").
			Step("waitForExpiry", SleepUntilKey("createdAt", 24*time.Hour)).
			Step("deleteStory", func(ctx context.Context, rc Context) (Context, error) {
				*deleted++
				return nil, nil
			}).
			MustRegister(eng)
		require.NoError(t, eng.RegisterTrigger(Trigger{
			On:       EventStoryCreated,
			Workflow: "story-expiry",
			Key:      func(evt Event) string { return evt.PayloadString("storyId") },
			InitContext: func(evt Event) Context {
				return Context{
					"storyId":   evt.PayloadString("storyId"),
					"createdAt": evt.PayloadTime("createdAt"),
				}
			},
		}))
	}

	// --- Phase 1: create the run and park it.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	clock1 := NewManualClock(start)
	eng1, err := NewSQLiteEngine(db1, EngineOptions{Clock: clock1})
	require.NoError(t, err)

	var deleted1 int
	register(eng1, &deleted1)

	eng1.Publish(ctx, Event{
		Type:    EventStoryCreated,
		Payload: map[string]any{"storyId": "s1", "createdAt": start},
	})
	_, err = eng1.Sweep(ctx, "w1")
	require.NoError(t, err)

	runs, err := eng1.ListRuns(ctx, RunListOptions{WorkflowName: "story-expiry"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, StatusSleeping, runs[0].Status)
	require.Equal(t, start.Add(24*time.Hour), runs[0].NextRunAt)
	require.Zero(t, deleted1)

	// Simulate a crash.
	require.NoError(t, db1.Close())

	// --- Phase 2: restart past the deadline and finish the run.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	clock2 := NewManualClock(start.Add(24*time.Hour + time.Minute))
	eng2, err := NewSQLiteEngine(db2, EngineOptions{Clock: clock2})
	require.NoError(t, err)

	var deleted2 int
	register(eng2, &deleted2)

	// Redelivery of the same event is a no-op against the existing run.
	eng2.Publish(ctx, Event{
		Type:    EventStoryCreated,
		Payload: map[string]any{"storyId": "s1", "createdAt": start},
	})

	for {
		n, err := eng2.Sweep(ctx, "w2")
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}

	runs, err = eng2.ListRuns(ctx, RunListOptions{WorkflowName: "story-expiry"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, StatusSucceeded, runs[0].Status)
	require.Equal(t, 1, deleted2)

	records, err := eng2.StepHistory(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "waitForExpiry", records[0].StepName)
	require.Equal(t, "deleteStory", records[1].StepName)
}
