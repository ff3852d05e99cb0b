package cmd

import (
	"context"
	"log/slog"

	"github.com/hookflow/hookflow/pkg/actions/delay"
	"github.com/hookflow/hookflow/pkg/actions/httprequest"
	"github.com/hookflow/hookflow/pkg/actions/logaction"
	"github.com/hookflow/hookflow/pkg/actions/transform"
	"github.com/hookflow/hookflow/pkg/eventbus"
	"github.com/hookflow/hookflow/pkg/events"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/protocol"
	"github.com/hookflow/hookflow/pkg/registry"
)

// NewRegistry builds a registry with the built-in action handlers. Trigger
// handlers are registered by the caller, which owns their collaborators.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterAction("http_request", httprequest.NewAction())
	reg.RegisterAction("log", logaction.NewAction())
	reg.RegisterAction("transform", transform.NewAction())
	reg.RegisterAction("delay", delay.NewAction())

	return reg
}

// NewTriggerCallback builds the shared callback converting a fired trigger
// into a durable WorkflowTriggered event on the bus.
func NewTriggerCallback(bus eventbus.EventPublisher, workflows persistence.WorkflowRepository, logger *slog.Logger) protocol.TriggerCallback {
	log := logger.With("module", "trigger_callback")

	return func(ctx context.Context, workflowID string, data map[string]any) error {
		workflow, err := workflows.ByID(ctx, workflowID)
		if err != nil {
			return err
		}

		event := events.WorkflowTriggered{
			BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, workflowID),
			TriggerType: string(workflow.Trigger.Type),
			OwnerID:     workflow.OwnerID,
			TriggerData: data,
		}

		if err := bus.Publish(ctx, workflowID, event); err != nil {
			log.ErrorContext(ctx, "Failed to publish trigger event",
				"workflow_id", workflowID,
				"error", err)

			return err
		}

		log.InfoContext(ctx, "Published trigger event",
			"workflow_id", workflowID,
			"event_id", event.ID)

		return nil
	}
}
