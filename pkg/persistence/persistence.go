// Package persistence provides the storage abstraction consumed by the
// trigger orchestration and execution engine.
package persistence

import (
	"context"

	"github.com/hookflow/hookflow/pkg/models"
)

// WorkflowRepository stores workflow definitions together with their trigger
// and action graph.
type WorkflowRepository interface {
	All(ctx context.Context) ([]*models.Workflow, error)
	Enabled(ctx context.Context) ([]*models.Workflow, error)
	ByID(ctx context.Context, id string) (*models.Workflow, error)
	ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)
	ByOwnerAndTriggerType(ctx context.Context, ownerID string, triggerType models.TriggerType) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error

	// UpdateTriggerConfig atomically merges the given keys into the
	// workflow's trigger configuration. A nil value removes the key.
	UpdateTriggerConfig(ctx context.Context, workflowID string, config map[string]any) error

	// UpdateActionRelations atomically rewrites the graph edges of one action.
	UpdateActionRelations(ctx context.Context, workflowID, actionID string, nextActionID, parentActionID *string) error
}

// ExecutionRepository stores execution and step records. Every state
// transition is persisted as it occurs, never batched, so a crash mid-run
// leaves an accurate partial record.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	UpdateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)

	CreateStep(ctx context.Context, step *models.ExecutionStep) error
	UpdateStep(ctx context.Context, step *models.ExecutionStep) error
	StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
}

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
