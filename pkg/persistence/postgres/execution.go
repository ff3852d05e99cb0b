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

// ExecutionRepository handles execution and step database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to encode trigger data: %w", err)
	}

	result, err := json.Marshal(execution.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, trigger_data, result, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		execution.ID,
		execution.WorkflowID,
		string(execution.Status),
		triggerData,
		result,
		execution.Error,
		execution.StartedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution %s: %w", execution.ID, err)
	}

	return nil
}

// UpdateExecution persists a state transition. Rows already in a terminal
// status are never overwritten.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	result, err := json.Marshal(execution.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $1, result = $2, error = $3, finished_at = $4
		WHERE id = $5 AND status NOT IN ('completed', 'failed', 'cancelled')
	`,
		string(execution.Status),
		result,
		execution.Error,
		execution.FinishedAt,
		execution.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for execution %s: %w", execution.ID, err)
	}

	if affected == 0 {
		if _, lookupErr := r.ExecutionByID(ctx, execution.ID); lookupErr != nil {
			return lookupErr
		}

		return persistence.ErrExecutionTerminal
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, trigger_data, result, error, started_at, finished_at
		FROM executions WHERE id = $1
	`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	return execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, status, trigger_data, result, error, started_at, finished_at
		FROM executions WHERE workflow_id = $1 ORDER BY started_at
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		status      string
		triggerData []byte
		result      []byte
		errText     sql.NullString
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&status,
		&triggerData,
		&result,
		&errText,
		&execution.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.Error = errText.String

	if finishedAt.Valid {
		execution.FinishedAt = &finishedAt.Time
	}

	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to decode trigger data for execution %s: %w", execution.ID, err)
		}
	}

	if len(result) > 0 {
		if err := json.Unmarshal(result, &execution.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result for execution %s: %w", execution.ID, err)
		}
	}

	return &execution, nil
}

func (r *ExecutionRepository) CreateStep(ctx context.Context, step *models.ExecutionStep) error {
	input, err := json.Marshal(step.Input)
	if err != nil {
		return fmt.Errorf("failed to encode step input: %w", err)
	}

	output, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to encode step output: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_steps (id, execution_id, action_id, step_order, status, input, output, retry_count, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		step.ID,
		step.ExecutionID,
		step.ActionID,
		step.Order,
		string(step.Status),
		input,
		output,
		step.RetryCount,
		step.Error,
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create step %s: %w", step.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) UpdateStep(ctx context.Context, step *models.ExecutionStep) error {
	output, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to encode step output: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE execution_steps
		SET status = $1, output = $2, retry_count = $3, error = $4, finished_at = $5
		WHERE id = $6
	`,
		string(step.Status),
		output,
		step.RetryCount,
		step.Error,
		step.FinishedAt,
		step.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update step %s: %w", step.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for step %s: %w", step.ID, err)
	}

	if affected == 0 {
		return persistence.ErrStepNotFound
	}

	return nil
}

func (r *ExecutionRepository) StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, action_id, step_order, status, input, output, retry_count, error, started_at, finished_at
		FROM execution_steps WHERE execution_id = $1 ORDER BY started_at
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step       models.ExecutionStep
			status     string
			input      []byte
			output     []byte
			errText    sql.NullString
			finishedAt sql.NullTime
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.ActionID,
			&step.Order,
			&status,
			&input,
			&output,
			&step.RetryCount,
			&errText,
			&step.StartedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		step.Status = models.StepStatus(status)
		step.Error = errText.String

		if finishedAt.Valid {
			step.FinishedAt = &finishedAt.Time
		}

		if len(input) > 0 {
			if err := json.Unmarshal(input, &step.Input); err != nil {
				return nil, fmt.Errorf("failed to decode input for step %s: %w", step.ID, err)
			}
		}

		if len(output) > 0 {
			if err := json.Unmarshal(output, &step.Output); err != nil {
				return nil, fmt.Errorf("failed to decode output for step %s: %w", step.ID, err)
			}
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}
