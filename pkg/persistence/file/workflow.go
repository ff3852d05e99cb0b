package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
)

// WorkflowRepository stores one JSON document per workflow.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (r *WorkflowRepository) path(id string) string {
	return filepath.Join(r.root, id+".json")
}

func (r *WorkflowRepository) All(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readAll()
}

func (r *WorkflowRepository) readAll() ([]*models.Workflow, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read workflows directory: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		workflow, err := r.read(filepath.Join(r.root, entry.Name()))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) read(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow file %s: %w", path, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Enabled(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Enabled {
			enabled = append(enabled, workflow)
		}
	}

	return enabled, nil
}

func (r *WorkflowRepository) ByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID(id)
}

func (r *WorkflowRepository) byID(id string) (*models.Workflow, error) {
	workflow, err := r.read(r.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	workflows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Trigger.Type == triggerType {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *WorkflowRepository) ByOwnerAndTriggerType(ctx context.Context, ownerID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	workflows, err := r.ByTriggerType(ctx, triggerType)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.OwnerID == ownerID {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(workflow)
}

func (r *WorkflowRepository) write(workflow *models.Workflow) error {
	if err := os.MkdirAll(r.root, 0o750); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", workflow.ID, err)
	}

	if err := os.WriteFile(r.path(workflow.ID), data, 0o600); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return persistence.ErrWorkflowNotFound
	}

	return err
}

func (r *WorkflowRepository) UpdateTriggerConfig(_ context.Context, workflowID string, config map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.byID(workflowID)
	if err != nil {
		return err
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

	return r.write(workflow)
}

func (r *WorkflowRepository) UpdateActionRelations(_ context.Context, workflowID, actionID string, nextActionID, parentActionID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.byID(workflowID)
	if err != nil {
		return err
	}

	action := workflow.ActionByID(actionID)
	if action == nil {
		return persistence.ErrActionNotFound
	}

	action.NextActionID = nextActionID
	action.ParentActionID = parentActionID

	if err := models.ValidateActionGraph(workflow.Actions); err != nil {
		return err
	}

	return r.write(workflow)
}
