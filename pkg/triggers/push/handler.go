// Package push provides the provider push subscription trigger for mail and
// chat sources: watch lifecycle, inbound notification fan-out through the
// durable queue, and the daily subscription renewal sweep.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/protocol"
	"github.com/hookflow/hookflow/pkg/queue"
)

var ErrUserRequired = errors.New("push trigger requires a userId")

const (
	// tokenSafetyWindow forces a refresh when the access token would expire
	// mid-registration.
	tokenSafetyWindow = 5 * time.Minute

	// renewalWindow marks subscriptions due for re-registration.
	renewalWindow = 24 * time.Hour

	sweepInterval = 24 * time.Hour
)

// Handler drives one push provider. Two instances are normally registered,
// one for the mail trigger type and one for chat, each wrapping its own
// PushProvider implementation.
type Handler struct {
	triggerType models.TriggerType
	provider    string
	api         protocol.PushProvider
	creds       protocol.CredentialProvider
	workflows   persistence.WorkflowRepository
	jobs        queue.Queue
	callback    protocol.TriggerCallback
	logger      *slog.Logger
}

func NewHandler(
	triggerType models.TriggerType,
	provider string,
	api protocol.PushProvider,
	creds protocol.CredentialProvider,
	workflows persistence.WorkflowRepository,
	jobs queue.Queue,
	callback protocol.TriggerCallback,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		triggerType: triggerType,
		provider:    provider,
		api:         api,
		creds:       creds,
		workflows:   workflows,
		jobs:        jobs,
		callback:    callback,
		logger:      logger.With("module", "push_trigger", "provider", provider),
	}
}

func (h *Handler) Type() models.TriggerType { return h.triggerType }

// QueueTopic is the durable queue topic this provider's items land on.
func (h *Handler) QueueTopic() string {
	return "hookflow.push." + h.provider
}

func (h *Handler) Validate(config map[string]any) error {
	userID, _ := config["userId"].(string)
	if userID == "" {
		return ErrUserRequired
	}

	return nil
}

// Register establishes the provider-side watch for the workflow's user and
// persists the resume cursor and subscription expiry. Registering an already
// watched workflow restarts the watch, so the call is safe to repeat.
func (h *Handler) Register(ctx context.Context, workflow *models.Workflow) error {
	userID := workflow.TriggerConfigString("userId")
	if userID == "" {
		return ErrUserRequired
	}

	token, err := h.token(ctx, userID)
	if err != nil {
		return err
	}

	topic, err := h.api.EnsureTopic(ctx, token, userID)
	if err != nil || topic == "" {
		topic = fmt.Sprintf("hookflow-%s-%s", h.provider, userID)
		h.logger.WarnContext(ctx, "Falling back to deterministic topic name",
			"workflow_id", workflow.ID,
			"topic", topic,
			"error", err)
	}

	result, err := h.api.Watch(ctx, token, userID, topic)
	if err != nil {
		return fmt.Errorf("failed to start watch for workflow %s: %w", workflow.ID, err)
	}

	err = h.workflows.UpdateTriggerConfig(ctx, workflow.ID, map[string]any{
		"topic":           topic,
		"historyId":       result.HistoryID,
		"watchExpiration": result.Expiration.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to persist watch state for workflow %s: %w", workflow.ID, err)
	}

	h.logger.InfoContext(ctx, "Registered push watch",
		"workflow_id", workflow.ID,
		"user_id", userID,
		"expiration", result.Expiration)

	return nil
}

// Unregister stops the provider watch. Missing workflows and already expired
// subscriptions are tolerated so teardown never blocks workflow deletion.
func (h *Handler) Unregister(ctx context.Context, workflowID string) error {
	workflow, err := h.workflows.ByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil
		}

		return err
	}

	userID := workflow.TriggerConfigString("userId")
	if userID == "" {
		return nil
	}

	token, err := h.token(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "Skipping provider stop, no usable token",
			"workflow_id", workflowID,
			"error", err)
	} else if err := h.api.StopWatch(ctx, token, userID); err != nil {
		h.logger.WarnContext(ctx, "Failed to stop provider watch",
			"workflow_id", workflowID,
			"error", err)
	}

	return h.workflows.UpdateTriggerConfig(ctx, workflowID, map[string]any{
		"historyId":       nil,
		"watchExpiration": nil,
	})
}

// HandlePushNotification fans one provider envelope out to every enabled
// workflow of the notified user: new items since the stored cursor become one
// durable job each, then the cursor advances to the newest position. A
// failure in one workflow is logged and does not stop the others.
func (h *Handler) HandlePushNotification(ctx context.Context, envelope map[string]any) error {
	userID := ownerFromEnvelope(envelope)
	if userID == "" {
		return fmt.Errorf("push notification for provider %s carries no user identity", h.provider)
	}

	workflows, err := h.workflows.ByOwnerAndTriggerType(ctx, userID, h.triggerType)
	if err != nil {
		return fmt.Errorf("failed to load workflows for user %s: %w", userID, err)
	}

	token, err := h.token(ctx, userID)
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		if !workflow.Enabled {
			continue
		}

		if err := h.drainWorkflow(ctx, token, workflow, userID); err != nil {
			h.logger.ErrorContext(ctx, "Failed to process push notification for workflow",
				"workflow_id", workflow.ID,
				"error", err)
		}
	}

	return nil
}

func (h *Handler) drainWorkflow(ctx context.Context, token protocol.Token, workflow *models.Workflow, userID string) error {
	cursor := workflow.TriggerConfigString("historyId")

	items, newCursor, err := h.api.ItemsSince(ctx, token, userID, cursor)
	if err != nil {
		return fmt.Errorf("failed to list items since cursor %s: %w", cursor, err)
	}

	for _, item := range items {
		job := queue.Job{
			Key:   workflow.ID + ":" + item.ID,
			Topic: h.QueueTopic(),
			Payload: map[string]any{
				"workflow_id": workflow.ID,
				"provider":    h.provider,
				"item_id":     item.ID,
				"item":        item.Data,
			},
		}

		if err := h.jobs.Enqueue(ctx, h.QueueTopic(), job); err != nil {
			return fmt.Errorf("failed to enqueue item %s: %w", item.ID, err)
		}
	}

	if newCursor != "" && newCursor != cursor {
		err := h.workflows.UpdateTriggerConfig(ctx, workflow.ID, map[string]any{
			"historyId": newCursor,
		})
		if err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	if len(items) > 0 {
		h.logger.InfoContext(ctx, "Enqueued push items",
			"workflow_id", workflow.ID,
			"items", len(items))
	}

	return nil
}

// StartConsumer starts the queue worker pool turning durable push jobs into
// trigger events. Dedup happened at enqueue time; the callback path is
// idempotent per job key.
func (h *Handler) StartConsumer(ctx context.Context) error {
	return h.jobs.Consume(ctx, h.QueueTopic(), func(ctx context.Context, job *queue.Job) error {
		workflowID, _ := job.Payload["workflow_id"].(string)
		if workflowID == "" {
			h.logger.WarnContext(ctx, "Dropping push job without workflow id", "key", job.Key)
			return nil
		}

		return h.callback(ctx, workflowID, map[string]any{
			"provider": h.provider,
			"item_id":  job.Payload["item_id"],
			"item":     job.Payload["item"],
		})
	})
}

// StartRenewalSweep re-registers expiring subscriptions on a daily tick until
// ctx is cancelled.
func (h *Handler) StartRenewalSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.RenewExpiring(ctx)
			}
		}
	}()
}

// RenewExpiring re-registers every enabled workflow whose subscription
// expires within the renewal window. Per-workflow failures are logged and the
// sweep continues.
func (h *Handler) RenewExpiring(ctx context.Context) {
	workflows, err := h.workflows.ByTriggerType(ctx, h.triggerType)
	if err != nil {
		h.logger.ErrorContext(ctx, "Renewal sweep failed to load workflows", "error", err)
		return
	}

	deadline := time.Now().Add(renewalWindow)

	for _, workflow := range workflows {
		if !workflow.Enabled {
			continue
		}

		raw := workflow.TriggerConfigString("watchExpiration")
		if raw == "" {
			continue
		}

		expiration, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.logger.WarnContext(ctx, "Unparseable watch expiration",
				"workflow_id", workflow.ID,
				"value", raw)
			continue
		}

		if expiration.After(deadline) {
			continue
		}

		if err := h.Register(ctx, workflow); err != nil {
			h.logger.ErrorContext(ctx, "Failed to renew push subscription",
				"workflow_id", workflow.ID,
				"error", err)
			continue
		}

		h.logger.InfoContext(ctx, "Renewed push subscription",
			"workflow_id", workflow.ID,
			"previous_expiration", expiration)
	}
}

func (h *Handler) token(ctx context.Context, userID string) (protocol.Token, error) {
	token, err := h.creds.AccessToken(ctx, userID, h.provider)
	if err != nil {
		return protocol.Token{}, err
	}

	if token.ExpiresWithin(tokenSafetyWindow) {
		return h.creds.Refresh(ctx, userID, h.provider)
	}

	return token, nil
}

func ownerFromEnvelope(envelope map[string]any) string {
	for _, key := range []string{"userId", "user_id", "emailAddress"} {
		if v, ok := envelope[key].(string); ok && v != "" {
			return v
		}
	}

	return ""
}
