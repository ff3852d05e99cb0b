// Package webhook provides the webhook trigger: registration assigns each
// workflow a stable webhook identifier, and inbound requests are resolved
// back to the owning workflow.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/protocol"
)

var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrInvalidSecret   = errors.New("invalid webhook secret")
	ErrPathRequired    = errors.New("webhook trigger path is required")
)

// SecretHeader is the inbound header checked against the trigger's shared
// secret, when one is configured.
const SecretHeader = "X-Webhook-Secret"

// Handler is the webhook trigger. The in-memory webhook index is a
// single-process cache rebuilt from persisted trigger configs; the persisted
// config stays authoritative, so a cache miss falls back to a repository
// scan before reporting not-found.
type Handler struct {
	workflows persistence.WorkflowRepository
	callback  protocol.TriggerCallback
	logger    *slog.Logger
	baseURL   string

	mu    sync.RWMutex
	index map[string]string // webhookID -> workflowID
}

func NewHandler(workflows persistence.WorkflowRepository, callback protocol.TriggerCallback, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		workflows: workflows,
		callback:  callback,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger.With("module", "webhook_trigger"),
		index:     make(map[string]string),
	}
}

func (h *Handler) Type() models.TriggerType { return models.TriggerTypeWebhook }

func (h *Handler) Validate(config map[string]any) error {
	path, _ := config["path"].(string)
	if path == "" {
		return ErrPathRequired
	}

	return nil
}

// Register assigns a webhook identifier if the trigger does not have one yet
// and persists the id and resolved URL into the trigger config.
func (h *Handler) Register(ctx context.Context, workflow *models.Workflow) error {
	webhookID := workflow.TriggerConfigString("webhookId")
	if webhookID == "" {
		webhookID = "wh-" + uuid.New().String()[:8]
	}

	err := h.workflows.UpdateTriggerConfig(ctx, workflow.ID, map[string]any{
		"webhookId":  webhookID,
		"webhookUrl": h.baseURL + "/webhooks/" + webhookID,
	})
	if err != nil {
		return fmt.Errorf("failed to persist webhook registration for workflow %s: %w", workflow.ID, err)
	}

	h.mu.Lock()
	h.index[webhookID] = workflow.ID
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "Registered webhook trigger",
		"workflow_id", workflow.ID,
		"webhook_id", webhookID)

	return nil
}

func (h *Handler) Unregister(_ context.Context, workflowID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for webhookID, id := range h.index {
		if id == workflowID {
			delete(h.index, webhookID)
		}
	}

	return nil
}

// HandleWebhookRequest resolves an inbound webhook call to its workflow,
// checks the shared secret when configured, and publishes the trigger event
// with the raw payload and headers. The caller owns retry policy; resolution
// failures surface synchronously.
func (h *Handler) HandleWebhookRequest(ctx context.Context, webhookID string, payload map[string]any, headers map[string]string) error {
	workflow, err := h.resolve(ctx, webhookID)
	if err != nil {
		return err
	}

	if secret := workflow.TriggerConfigString("secret"); secret != "" {
		if headers[SecretHeader] != secret {
			return fmt.Errorf("webhook %s: %w", webhookID, ErrInvalidSecret)
		}
	}

	headerData := make(map[string]any, len(headers))
	for name, value := range headers {
		headerData[name] = value
	}

	data := map[string]any{
		"webhook_id": webhookID,
		"payload":    payload,
		"headers":    headerData,
	}

	h.logger.InfoContext(ctx, "Webhook request matched",
		"webhook_id", webhookID,
		"workflow_id", workflow.ID)

	return h.callback(ctx, workflow.ID, data)
}

func (h *Handler) resolve(ctx context.Context, webhookID string) (*models.Workflow, error) {
	h.mu.RLock()
	workflowID, cached := h.index[webhookID]
	h.mu.RUnlock()

	if cached {
		workflow, err := h.workflows.ByID(ctx, workflowID)
		if err == nil && workflow.Enabled {
			return workflow, nil
		}
	}

	// Cache miss or stale entry: the persisted config is authoritative.
	workflows, err := h.workflows.ByTriggerType(ctx, models.TriggerTypeWebhook)
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook triggers: %w", err)
	}

	for _, workflow := range workflows {
		if !workflow.Enabled || workflow.TriggerConfigString("webhookId") != webhookID {
			continue
		}

		h.mu.Lock()
		h.index[webhookID] = workflow.ID
		h.mu.Unlock()

		return workflow, nil
	}

	return nil, fmt.Errorf("webhook %s: %w", webhookID, ErrWebhookNotFound)
}
