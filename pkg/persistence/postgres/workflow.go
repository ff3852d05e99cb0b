package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
)

// WorkflowRepository handles workflow database operations. The trigger config
// and action graph are stored as JSONB documents on the workflow row.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , owner_id
  , name
  , enabled
  , trigger_type
  , trigger_config
  , actions
  , created_at
  , updated_at
`

func (r *WorkflowRepository) All(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, "SELECT"+workflowColumns+"FROM workflows ORDER BY created_at")
}

func (r *WorkflowRepository) Enabled(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, "SELECT"+workflowColumns+"FROM workflows WHERE enabled ORDER BY created_at")
}

func (r *WorkflowRepository) ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return r.query(ctx,
		"SELECT"+workflowColumns+"FROM workflows WHERE trigger_type = $1 ORDER BY created_at",
		string(triggerType))
}

func (r *WorkflowRepository) ByOwnerAndTriggerType(ctx context.Context, ownerID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return r.query(ctx,
		"SELECT"+workflowColumns+"FROM workflows WHERE owner_id = $1 AND trigger_type = $2 ORDER BY created_at",
		ownerID, string(triggerType))
}

func (r *WorkflowRepository) ByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT"+workflowColumns+"FROM workflows WHERE id = $1", id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		triggerType   string
		triggerConfig []byte
		actions       []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.OwnerID,
		&workflow.Name,
		&workflow.Enabled,
		&triggerType,
		&triggerConfig,
		&actions,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Trigger.Type = models.TriggerType(triggerType)

	if err := json.Unmarshal(triggerConfig, &workflow.Trigger.Config); err != nil {
		return nil, fmt.Errorf("failed to decode trigger config for workflow %s: %w", workflow.ID, err)
	}

	if err := json.Unmarshal(actions, &workflow.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions for workflow %s: %w", workflow.ID, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	triggerConfig, err := json.Marshal(workflow.Trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to encode trigger config: %w", err)
	}

	actions, err := json.Marshal(workflow.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, owner_id, name, enabled, trigger_type, trigger_config, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			actions = EXCLUDED.actions,
			updated_at = EXCLUDED.updated_at
	`,
		workflow.ID,
		workflow.OwnerID,
		workflow.Name,
		workflow.Enabled,
		string(workflow.Trigger.Type),
		triggerConfig,
		actions,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result for workflow %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// UpdateTriggerConfig merges keys into trigger_config inside one transaction
// with the row locked, so concurrent register/renew sweeps never clobber each
// other's cursor or expiry writes.
func (r *WorkflowRepository) UpdateTriggerConfig(ctx context.Context, workflowID string, config map[string]any) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var current []byte

	err = transaction.QueryRowContext(ctx,
		"SELECT trigger_config FROM workflows WHERE id = $1 FOR UPDATE", workflowID).Scan(&current)
	if err != nil {
		_ = transaction.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrWorkflowNotFound
		}

		return fmt.Errorf("failed to lock workflow %s: %w", workflowID, err)
	}

	var merged map[string]any
	if err := json.Unmarshal(current, &merged); err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to decode trigger config for workflow %s: %w", workflowID, err)
	}

	if merged == nil {
		merged = make(map[string]any, len(config))
	}

	for key, value := range config {
		if value == nil {
			delete(merged, key)

			continue
		}

		merged[key] = value
	}

	updated, err := json.Marshal(merged)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to encode trigger config for workflow %s: %w", workflowID, err)
	}

	_, err = transaction.ExecContext(ctx,
		"UPDATE workflows SET trigger_config = $1, updated_at = NOW() WHERE id = $2", updated, workflowID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to update trigger config for workflow %s: %w", workflowID, err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit trigger config update for workflow %s: %w", workflowID, err)
	}

	return nil
}

// UpdateActionRelations rewrites one action's graph edges with the workflow
// row locked, validating graph well-formedness before committing.
func (r *WorkflowRepository) UpdateActionRelations(ctx context.Context, workflowID, actionID string, nextActionID, parentActionID *string) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var current []byte

	err = transaction.QueryRowContext(ctx,
		"SELECT actions FROM workflows WHERE id = $1 FOR UPDATE", workflowID).Scan(&current)
	if err != nil {
		_ = transaction.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrWorkflowNotFound
		}

		return fmt.Errorf("failed to lock workflow %s: %w", workflowID, err)
	}

	var actions []*models.Action
	if err := json.Unmarshal(current, &actions); err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to decode actions for workflow %s: %w", workflowID, err)
	}

	var target *models.Action

	for _, action := range actions {
		if action.ID == actionID {
			target = action

			break
		}
	}

	if target == nil {
		_ = transaction.Rollback()

		return persistence.ErrActionNotFound
	}

	target.NextActionID = nextActionID
	target.ParentActionID = parentActionID

	if err := models.ValidateActionGraph(actions); err != nil {
		_ = transaction.Rollback()

		return err
	}

	updated, err := json.Marshal(actions)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to encode actions for workflow %s: %w", workflowID, err)
	}

	_, err = transaction.ExecContext(ctx,
		"UPDATE workflows SET actions = $1, updated_at = NOW() WHERE id = $2", updated, workflowID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to update actions for workflow %s: %w", workflowID, err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit action update for workflow %s: %w", workflowID, err)
	}

	return nil
}
