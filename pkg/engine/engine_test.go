package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/registry"
	"github.com/hookflow/hookflow/pkg/testutil"
)

type stubAction struct {
	fn func(ctx context.Context, executionCtx models.ExecutionContext, config map[string]any) (any, error)
}

func (s *stubAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, config map[string]any, _ *slog.Logger) (any, error) {
	return s.fn(ctx, executionCtx, config)
}

func (s *stubAction) ValidateConfig(_ map[string]any) error { return nil }

func okAction(output any) *stubAction {
	return &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		return output, nil
	}}
}

func newTestEngine(t *testing.T, workflows ...*models.Workflow) (*Engine, *testutil.MemoryPersistence, *registry.Registry) {
	t.Helper()

	persist := testutil.NewMemoryPersistence()
	for _, workflow := range workflows {
		require.NoError(t, persist.Workflows().Save(context.Background(), workflow))
	}

	reg := registry.NewRegistry(slog.Default())

	return NewEngine(persist, reg, slog.Default()), persist, reg
}

func TestExecute_DisabledWorkflowCreatesNoRecord(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.Disabled())
	eng, persist, _ := newTestEngine(t, workflow)

	execution, err := eng.Execute(context.Background(), workflow.ID, nil)

	require.ErrorIs(t, err, ErrWorkflowDisabled)
	assert.Nil(t, execution)

	executions, err := persist.Executions().ExecutionsByWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Execute(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestExecute_SequentialChain(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("a", 0, testutil.WithNext("b")),
		testutil.CreateTestAction("b", 1, testutil.WithType("log", map[string]any{
			"message": "after {{step.0.value}}",
		})),
	))

	eng, persist, reg := newTestEngine(t, workflow)

	var secondConfig map[string]any

	reg.RegisterAction("log", &stubAction{fn: func(_ context.Context, execCtx models.ExecutionContext, config map[string]any) (any, error) {
		if execCtx.CurrentStepOrder == 1 {
			secondConfig = config
		}

		return map[string]any{"value": "first"}, nil
	}})

	execution, err := eng.Execute(context.Background(), workflow.ID, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.NotNil(t, execution.FinishedAt)

	// Step results from earlier actions are visible to later templates.
	require.NotNil(t, secondConfig)
	assert.Equal(t, "after first", secondConfig["message"])

	steps, err := persist.Executions().StepsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	for _, step := range steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status)
		assert.NotNil(t, step.FinishedAt)
	}
}

func TestExecute_EmptyWorkflowCompletes(t *testing.T) {
	workflow := testutil.CreateTestWorkflow()
	eng, _, _ := newTestEngine(t, workflow)

	execution, err := eng.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestExecute_RetryBound(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("flaky", 0,
			testutil.WithType("flaky", map[string]any{}),
			testutil.WithRetry(models.RetryFixed, 100, 3)),
	))

	eng, persist, reg := newTestEngine(t, workflow)

	var calls atomic.Int32

	reg.RegisterAction("flaky", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}

		return "done", nil
	}})

	started := time.Now()
	execution, err := eng.Execute(context.Background(), workflow.ID, nil)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.EqualValues(t, 3, calls.Load())
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

	steps, err := persist.Executions().StepsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 2, steps[0].RetryCount)
}

func TestExecute_RetryBoundAlwaysFailing(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("down", 0,
			testutil.WithType("down", map[string]any{}),
			testutil.WithRetry(models.RetryFixed, 100, 3)),
	))

	eng, persist, reg := newTestEngine(t, workflow)

	var calls atomic.Int32

	reg.RegisterAction("down", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		calls.Add(1)

		return nil, errors.New("still down")
	}})

	started := time.Now()
	execution, err := eng.Execute(context.Background(), workflow.ID, nil)
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.EqualValues(t, 3, calls.Load())
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, 3, handlerErr.Attempts)

	steps, err := persist.Executions().StepsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
	assert.Equal(t, 2, steps[0].RetryCount)
}

func TestExecute_RetryExhausted(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("flaky", 0,
			testutil.WithType("flaky", map[string]any{}),
			testutil.WithRetry(models.RetryFixed, 10, 2)),
	))

	eng, persist, reg := newTestEngine(t, workflow)

	reg.RegisterAction("flaky", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		return nil, errors.New("always down")
	}})

	started := time.Now()
	execution, err := eng.Execute(context.Background(), workflow.ID, nil)

	require.Error(t, err)

	// Fixed 10ms policy with 2 attempts: the delay runs after each failed
	// attempt, the last one included.
	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "flaky", handlerErr.ActionID)
	assert.Equal(t, 2, handlerErr.Attempts)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.NotEmpty(t, execution.Error)

	steps, err := persist.Executions().StepsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
}

func TestExecute_UnknownActionType(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("a", 0, testutil.WithType("no_such_action", map[string]any{})),
	))

	eng, _, _ := newTestEngine(t, workflow)

	execution, err := eng.Execute(context.Background(), workflow.ID, nil)

	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
}

func TestExecute_MalformedGraphFailsImmediately(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("a", 0, testutil.WithNext("missing")),
	))

	eng, _, reg := newTestEngine(t, workflow)
	reg.RegisterAction("log", okAction("x"))

	execution, err := eng.Execute(context.Background(), workflow.ID, nil)

	var graphErr *FatalGraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
}

func TestExecute_ConditionalRunsWinningBranch(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("cond", 0, testutil.WithType(models.ActionTypeConditional, map[string]any{
			"expression": "{{trigger.amount}} > 100",
		})),
		testutil.CreateTestAction("yes", 1,
			testutil.WithType("record", map[string]any{"which": "true"}),
			testutil.WithParent("cond", models.BranchTrue)),
		testutil.CreateTestAction("no", 2,
			testutil.WithType("record", map[string]any{"which": "false"}),
			testutil.WithParent("cond", models.BranchFalse)),
	))

	eng, _, reg := newTestEngine(t, workflow)

	var ran []string

	reg.RegisterAction("record", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, config map[string]any) (any, error) {
		ran = append(ran, config["which"].(string))
		return nil, nil
	}})

	execution, err := eng.Execute(context.Background(), workflow.ID, map[string]any{"amount": float64(150)})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"true"}, ran)
}

func TestExecute_ParallelStopOnFirstFailure(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("par", 0, testutil.WithType(models.ActionTypeParallel, map[string]any{
			"stopOnFirstFailure": true,
		})),
		testutil.CreateTestAction("fast-fail", 1,
			testutil.WithType("fail", map[string]any{}),
			testutil.WithParent("par", "")),
		testutil.CreateTestAction("slow-ok", 2,
			testutil.WithType("slow", map[string]any{}),
			testutil.WithParent("par", "")),
	))

	eng, _, reg := newTestEngine(t, workflow)

	var slowFinished atomic.Bool

	reg.RegisterAction("fail", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	}})
	reg.RegisterAction("slow", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		time.Sleep(300 * time.Millisecond)
		slowFinished.Store(true)

		return "ok", nil
	}})

	started := time.Now()
	execution, err := eng.Execute(context.Background(), workflow.ID, nil)
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)

	// The node fails as soon as the fast child reports, without waiting for
	// the slow sibling.
	assert.Less(t, elapsed, 250*time.Millisecond)
	assert.False(t, slowFinished.Load())

	// The slow child is never interrupted and still runs to completion.
	assert.Eventually(t, func() bool { return slowFinished.Load() }, 2*time.Second, 10*time.Millisecond)
}

func TestExecute_ParallelAnySuccess(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("par", 0, testutil.WithType(models.ActionTypeParallel, map[string]any{
			"waitForAll": false,
		})),
		testutil.CreateTestAction("bad", 1,
			testutil.WithType("fail", map[string]any{}),
			testutil.WithParent("par", "")),
		testutil.CreateTestAction("good", 2,
			testutil.WithType("ok", map[string]any{}),
			testutil.WithParent("par", "")),
	))

	eng, _, reg := newTestEngine(t, workflow)

	reg.RegisterAction("fail", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	}})
	reg.RegisterAction("ok", okAction("fine"))

	execution, err := eng.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestExecute_LoopIteratesItems(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("loop", 0, testutil.WithType(models.ActionTypeLoop, map[string]any{
			"itemsPath":    "trigger.items",
			"itemVariable": "current",
		})),
		testutil.CreateTestAction("body", 1,
			testutil.WithType("collect", map[string]any{}),
			testutil.WithParent("loop", "")),
	))

	eng, _, reg := newTestEngine(t, workflow)

	var seen []any

	reg.RegisterAction("collect", &stubAction{fn: func(_ context.Context, execCtx models.ExecutionContext, _ map[string]any) (any, error) {
		seen = append(seen, execCtx.Variables["current"])
		return nil, nil
	}})

	execution, err := eng.Execute(context.Background(), workflow.ID, map[string]any{
		"items": []any{"a", "b", "c"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []any{"a", "b", "c"}, seen)
}

func TestExecute_LoopFirstFailureFailsNode(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(testutil.WithActions(
		testutil.CreateTestAction("loop", 0, testutil.WithType(models.ActionTypeLoop, map[string]any{
			"itemsPath": "trigger.items",
		})),
		testutil.CreateTestAction("body", 1,
			testutil.WithType("explode", map[string]any{}),
			testutil.WithParent("loop", "")),
	))

	eng, _, reg := newTestEngine(t, workflow)

	var calls atomic.Int32

	reg.RegisterAction("explode", &stubAction{fn: func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (any, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	}})

	execution, err := eng.Execute(context.Background(), workflow.ID, map[string]any{
		"items": []any{"a", "b"},
	})

	require.Error(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.EqualValues(t, 1, calls.Load())
}
