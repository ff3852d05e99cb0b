// Package web provides the thin HTTP boundary in front of the trigger core:
// inbound webhook and push notifications plus manual workflow firing. There
// is no workflow CRUD surface here; lifecycle changes arrive over the event
// bus.
package web

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/hookflow/hookflow/pkg/engine"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/triggers/manual"
	"github.com/hookflow/hookflow/pkg/triggers/push"
	"github.com/hookflow/hookflow/pkg/triggers/webhook"
)

type Handlers struct {
	persistence persistence.Persistence
	manual      *manual.Handler
	webhook     *webhook.Handler
	push        map[string]*push.Handler
	logger      *slog.Logger
}

func NewHandlers(
	persist persistence.Persistence,
	manualHandler *manual.Handler,
	webhookHandler *webhook.Handler,
	pushHandlers map[string]*push.Handler,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		persistence: persist,
		manual:      manualHandler,
		webhook:     webhookHandler,
		push:        pushHandlers,
		logger:      logger.With("module", "web"),
	}
}

// NewApp builds the fiber application with the boundary routes mounted.
func NewApp(h *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "hookflow"})

	app.Post("/webhooks/:webhookID", h.PostWebhook)
	app.Post("/push/:provider", h.PostPushNotification)
	app.Post("/workflows/:id/trigger", h.PostManualTrigger)
	app.Get("/healthz", h.GetHealth)

	return app
}

func (h *Handlers) PostWebhook(c fiber.Ctx) error {
	webhookID := c.Params("webhookID")

	payload, err := parseBody(c)
	if err != nil {
		return badRequest(c, "request body must be a JSON object")
	}

	headers := make(map[string]string)
	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	if err := h.webhook.HandleWebhookRequest(c.Context(), webhookID, payload, headers); err != nil {
		return handleTriggerError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func (h *Handlers) PostPushNotification(c fiber.Ctx) error {
	provider := c.Params("provider")

	handler, ok := h.push[provider]
	if !ok {
		return notFound(c, "unknown push provider")
	}

	envelope, err := parseBody(c)
	if err != nil {
		return badRequest(c, "request body must be a JSON object")
	}

	if err := handler.HandlePushNotification(c.Context(), envelope); err != nil {
		h.logger.ErrorContext(c.Context(), "Push notification handling failed",
			"provider", provider,
			"error", err)

		return handleTriggerError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func (h *Handlers) PostManualTrigger(c fiber.Ctx) error {
	workflowID := c.Params("id")

	workflow, err := h.persistence.Workflows().ByID(c.Context(), workflowID)
	if err != nil {
		return handleTriggerError(c, err)
	}

	if !workflow.Enabled {
		return handleTriggerError(c, engine.ErrWorkflowDisabled)
	}

	payload := map[string]any{}
	if len(c.Body()) > 0 {
		payload, err = parseBody(c)
		if err != nil {
			return badRequest(c, "request body must be a JSON object")
		}
	}

	if err := h.manual.Fire(c.Context(), workflow.ID, payload); err != nil {
		return handleTriggerError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":      "accepted",
		"workflow_id": workflow.ID,
	})
}

func (h *Handlers) GetHealth(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}

func parseBody(c fiber.Ctx) (map[string]any, error) {
	payload := make(map[string]any)
	if len(c.Body()) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return nil, err
	}

	return payload, nil
}
