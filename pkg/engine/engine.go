// Package engine runs workflow action graphs: sequential chains, conditional
// branches, parallel fan-out and loops, with per-step retry and a persisted
// record of every state transition.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/registry"
)

type Engine struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	registry   *registry.Registry
	logger     *slog.Logger
}

func NewEngine(persist persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		workflows:  persist.Workflows(),
		executions: persist.Executions(),
		registry:   reg,
		logger:     logger.With("module", "engine"),
	}
}

// Execute runs the workflow's action graph against the trigger data. The
// returned Execution carries the terminal status; a non-nil error alongside
// it reproduces the failure cause. Disabled workflows short-circuit before
// any record is written.
func (e *Engine) Execute(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	workflow, err := e.workflows.ByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if !workflow.Enabled {
		return nil, ErrWorkflowDisabled
	}

	execution := &models.Execution{
		ID:          "exec-" + uuid.New().String()[:8],
		WorkflowID:  workflowID,
		Status:      models.ExecutionStatusPending,
		TriggerData: triggerData,
		StartedAt:   time.Now().UTC(),
	}

	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		return nil, &TransientInfraError{Op: "create execution", Err: err}
	}

	logger := e.logger.With(
		"workflow_id", workflowID,
		"execution_id", execution.ID,
	)
	logger.InfoContext(ctx, "Starting workflow execution")

	g, err := buildGraph(workflowID, workflow.Actions)
	if err != nil {
		return execution, e.finish(ctx, execution, logger, err)
	}

	execution.Status = models.ExecutionStatusRunning
	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return execution, e.finish(ctx, execution, logger, &TransientInfraError{Op: "update execution", Err: err})
	}

	execCtx := &models.ExecutionContext{
		ExecutionID: execution.ID,
		WorkflowID:  workflowID,
		UserID:      workflow.OwnerID,
		TriggerData: triggerData,
		StepResults: make(map[int]any),
		Variables:   make(map[string]any),
	}

	r := &run{engine: e, graph: g, execution: execution, logger: logger}

	runErr := r.runSequence(ctx, execCtx, g.entry)

	if runErr == nil {
		results := make(map[string]any, len(execCtx.StepResults))
		for order, output := range execCtx.StepResults {
			results[strconv.Itoa(order)] = output
		}

		execution.Result = map[string]any{"step_results": results}
	}

	return execution, e.finish(ctx, execution, logger, runErr)
}

// finish sets the terminal status exactly once and persists it.
func (e *Engine) finish(ctx context.Context, execution *models.Execution, logger *slog.Logger, runErr error) error {
	if execution.Status.Terminal() {
		return runErr
	}

	now := time.Now().UTC()
	execution.FinishedAt = &now

	if runErr != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.Error = runErr.Error()
		logger.ErrorContext(ctx, "Workflow execution failed", "error", runErr)
	} else {
		execution.Status = models.ExecutionStatusCompleted
		logger.InfoContext(ctx, "Workflow execution completed")
	}

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist terminal execution state", "error", err)

		if runErr == nil {
			return &TransientInfraError{Op: "finish execution", Err: err}
		}
	}

	return runErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
