package flowkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noopStep(ctx context.Context, rc Context) (Context, error) {
	return nil, nil
}

func TestFlowBuilder_BuildsDefinition(t *testing.T) {
	t.Parallel()

	flow := New("greeting").
		Step("prepare", noopStep).
		StepWithRetry("deliver", noopStep, Retry(5).WithConstantBackoff(time.Minute).Policy()).
		ThenWait(2 * time.Hour).
		Step("confirm", noopStep)

	require.Equal(t, "greeting", flow.Name())

	def := flow.Definition()
	require.Equal(t, "greeting", def.Name)
	require.Len(t, def.Steps, 3)

	require.Equal(t, "prepare", def.Steps[0].Name)
	require.Nil(t, def.Steps[0].Retry)
	require.Zero(t, def.Steps[0].DelayBeforeNext)

	require.Equal(t, "deliver", def.Steps[1].Name)
	require.NotNil(t, def.Steps[1].Retry)
	require.Equal(t, 5, def.Steps[1].Retry.MaxAttempts)
	require.Equal(t, 2*time.Hour, def.Steps[1].DelayBeforeNext)

	require.Equal(t, "confirm", def.Steps[2].Name)
}

func TestFlowBuilder_StepWithRetryCopiesPolicy(t *testing.T) {
	t.Parallel()

	policy := Retry(3).WithConstantBackoff(time.Second).Policy()
	flow := New("copy-check").StepWithRetry("only", noopStep, policy)

	// Mutating the caller's policy after the fact must not leak into the
	// stored definition.
	policy.MaxAttempts = 99

	require.Equal(t, 3, flow.Definition().Steps[0].Retry.MaxAttempts)
}

func TestFlowBuilder_Panics(t *testing.T) {
	t.Parallel()

	require.PanicsWithValue(t, "flowkit: step name must not be empty", func() {
		New("bad").Step("", noopStep)
	})
	require.Panics(t, func() {
		New("bad").Step("nil-fn", nil)
	})
	require.PanicsWithValue(t, "flowkit: ThenWait requires a preceding step", func() {
		New("bad").ThenWait(time.Minute)
	})
}

func TestFlowBuilder_RegisterRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	eng := NewInMemoryEngine(EngineOptions{})

	require.NoError(t, New("dup").Step("s", noopStep).Register(eng))
	require.Error(t, New("dup").Step("s", noopStep).Register(eng))
}
