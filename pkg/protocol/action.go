package protocol

import (
	"context"
	"log/slog"

	"github.com/hookflow/hookflow/pkg/models"
)

// ActionHandler executes one action type. Handlers receive the execution
// context read view plus the action's own configuration; they never touch
// execution or step records directly.
type ActionHandler interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error)
	ValidateConfig(config map[string]any) error
}
