// Package logaction provides the log action, mostly useful while authoring
// and debugging workflows.
package logaction

import (
	"context"
	"log/slog"

	"github.com/hookflow/hookflow/pkg/models"
)

type Action struct{}

func NewAction() *Action { return &Action{} }

func (a *Action) ValidateConfig(_ map[string]any) error { return nil }

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	logger = logger.With(
		"workflow_id", executionCtx.WorkflowID,
		"execution_id", executionCtx.ExecutionID,
	)

	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{"message": message}, nil
}
