package testutil

import (
	"context"
	"sync"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
)

// MemoryPersistence is a map-backed persistence implementation with the same
// semantics as the file repository, for tests.
type MemoryPersistence struct {
	workflows  *MemoryWorkflowRepository
	executions *MemoryExecutionRepository
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		workflows: &MemoryWorkflowRepository{
			workflows: make(map[string]*models.Workflow),
		},
		executions: &MemoryExecutionRepository{
			executions: make(map[string]*models.Execution),
			steps:      make(map[string][]*models.ExecutionStep),
		},
	}
}

func (p *MemoryPersistence) Workflows() persistence.WorkflowRepository   { return p.workflows }
func (p *MemoryPersistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *MemoryPersistence) HealthCheck(_ context.Context) error         { return nil }
func (p *MemoryPersistence) Close(_ context.Context) error               { return nil }

type MemoryWorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

func (r *MemoryWorkflowRepository) All(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.workflows))
	for _, workflow := range r.workflows {
		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *MemoryWorkflowRepository) Enabled(ctx context.Context) ([]*models.Workflow, error) {
	all, _ := r.All(ctx)

	enabled := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.Enabled {
			enabled = append(enabled, workflow)
		}
	}

	return enabled, nil
}

func (r *MemoryWorkflowRepository) ByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *MemoryWorkflowRepository) ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	all, _ := r.All(ctx)

	matched := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.Trigger.Type == triggerType {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *MemoryWorkflowRepository) ByOwnerAndTriggerType(ctx context.Context, ownerID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	byType, _ := r.ByTriggerType(ctx, triggerType)

	matched := make([]*models.Workflow, 0, len(byType))

	for _, workflow := range byType {
		if workflow.OwnerID == ownerID {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *MemoryWorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.ID] = workflow

	return nil
}

func (r *MemoryWorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(r.workflows, id)

	return nil
}

func (r *MemoryWorkflowRepository) UpdateTriggerConfig(_ context.Context, workflowID string, config map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, ok := r.workflows[workflowID]
	if !ok {
		return persistence.ErrWorkflowNotFound
	}

	if workflow.Trigger.Config == nil {
		workflow.Trigger.Config = make(map[string]any, len(config))
	}

	for key, value := range config {
		if value == nil {
			delete(workflow.Trigger.Config, key)
			continue
		}

		workflow.Trigger.Config[key] = value
	}

	return nil
}

func (r *MemoryWorkflowRepository) UpdateActionRelations(_ context.Context, workflowID, actionID string, nextActionID, parentActionID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, ok := r.workflows[workflowID]
	if !ok {
		return persistence.ErrWorkflowNotFound
	}

	action := workflow.ActionByID(actionID)
	if action == nil {
		return persistence.ErrActionNotFound
	}

	prevNext, prevParent := action.NextActionID, action.ParentActionID
	action.NextActionID = nextActionID
	action.ParentActionID = parentActionID

	if err := models.ValidateActionGraph(workflow.Actions); err != nil {
		action.NextActionID = prevNext
		action.ParentActionID = prevParent

		return err
	}

	return nil
}

type MemoryExecutionRepository struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
	steps      map[string][]*models.ExecutionStep
}

func (r *MemoryExecutionRepository) CreateExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *execution
	r.executions[execution.ID] = &clone

	return nil
}

func (r *MemoryExecutionRepository) UpdateExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.executions[execution.ID]
	if !ok {
		return persistence.ErrExecutionNotFound
	}

	if stored.Status.Terminal() {
		return persistence.ErrExecutionTerminal
	}

	clone := *execution
	r.executions[execution.ID] = &clone

	return nil
}

func (r *MemoryExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return execution, nil
}

func (r *MemoryExecutionRepository) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.Execution

	for _, execution := range r.executions {
		if execution.WorkflowID == workflowID {
			matched = append(matched, execution)
		}
	}

	return matched, nil
}

func (r *MemoryExecutionRepository) CreateStep(_ context.Context, step *models.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *step
	r.steps[step.ExecutionID] = append(r.steps[step.ExecutionID], &clone)

	return nil
}

func (r *MemoryExecutionRepository) UpdateStep(_ context.Context, step *models.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, stored := range r.steps[step.ExecutionID] {
		if stored.ID == step.ID {
			clone := *step
			r.steps[step.ExecutionID][i] = &clone

			return nil
		}
	}

	return persistence.ErrStepNotFound
}

func (r *MemoryExecutionRepository) StepsByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.steps[executionID], nil
}
