// Package manual provides the no-op trigger for workflows started by direct
// API invocation.
package manual

import (
	"context"
	"log/slog"
	"time"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/protocol"
)

// Handler is the manual trigger. There is nothing to listen for: the
// boundary's trigger endpoint synthesizes the event through Fire.
type Handler struct {
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

func NewHandler(callback protocol.TriggerCallback, logger *slog.Logger) *Handler {
	return &Handler{
		callback: callback,
		logger:   logger.With("module", "manual_trigger"),
	}
}

func (h *Handler) Type() models.TriggerType { return models.TriggerTypeManual }

func (h *Handler) Validate(_ map[string]any) error { return nil }

func (h *Handler) Register(_ context.Context, _ *models.Workflow) error { return nil }

func (h *Handler) Unregister(_ context.Context, _ string) error { return nil }

// Fire synthesizes a trigger event for the workflow immediately.
func (h *Handler) Fire(ctx context.Context, workflowID string, payload map[string]any) error {
	data := map[string]any{
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
	}

	for key, value := range payload {
		data[key] = value
	}

	h.logger.InfoContext(ctx, "Manual trigger fired", "workflow_id", workflowID)

	return h.callback(ctx, workflowID, data)
}
