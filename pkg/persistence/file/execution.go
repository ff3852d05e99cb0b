package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
)

// ExecutionRepository stores one JSON document per execution plus one per
// execution holding its steps.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) executionPath(id string) string {
	return filepath.Join(r.root, id+".json")
}

func (r *ExecutionRepository) stepsPath(executionID string) string {
	return filepath.Join(r.root, executionID+".steps.json")
}

func (r *ExecutionRepository) CreateExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeExecution(execution)
}

func (r *ExecutionRepository) UpdateExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.readExecution(execution.ID)
	if err != nil {
		return err
	}

	if current.Status.Terminal() {
		return persistence.ErrExecutionTerminal
	}

	return r.writeExecution(execution)
}

func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readExecution(id)
}

func (r *ExecutionRepository) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	var executions []*models.Execution

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".steps.json") {
			continue
		}

		execution, err := r.readExecution(name[:len(name)-len(".json")])
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}

func (r *ExecutionRepository) readExecution(id string) (*models.Execution, error) {
	data, err := os.ReadFile(r.executionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution %s: %w", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) writeExecution(execution *models.Execution) error {
	if err := os.MkdirAll(r.root, 0o750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", execution.ID, err)
	}

	if err := os.WriteFile(r.executionPath(execution.ID), data, 0o600); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) CreateStep(_ context.Context, step *models.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps, err := r.readSteps(step.ExecutionID)
	if err != nil {
		return err
	}

	steps = append(steps, step)

	return r.writeSteps(step.ExecutionID, steps)
}

func (r *ExecutionRepository) UpdateStep(_ context.Context, step *models.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps, err := r.readSteps(step.ExecutionID)
	if err != nil {
		return err
	}

	for i, existing := range steps {
		if existing.ID == step.ID {
			steps[i] = step

			return r.writeSteps(step.ExecutionID, steps)
		}
	}

	return persistence.ErrStepNotFound
}

func (r *ExecutionRepository) StepsByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readSteps(executionID)
}

func (r *ExecutionRepository) readSteps(executionID string) ([]*models.ExecutionStep, error) {
	data, err := os.ReadFile(r.stepsPath(executionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read steps for execution %s: %w", executionID, err)
	}

	var steps []*models.ExecutionStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps for execution %s: %w", executionID, err)
	}

	return steps, nil
}

func (r *ExecutionRepository) writeSteps(executionID string, steps []*models.ExecutionStep) error {
	if err := os.MkdirAll(r.root, 0o750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode steps for execution %s: %w", executionID, err)
	}

	if err := os.WriteFile(r.stepsPath(executionID), data, 0o600); err != nil {
		return fmt.Errorf("failed to write steps for execution %s: %w", executionID, err)
	}

	return nil
}
