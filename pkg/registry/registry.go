// Package registry provides the string-tag lookup tables mapping trigger and
// action types to their handlers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/protocol"
)

var (
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrUnknownActionType  = errors.New("unknown action type")
)

// Registry holds the fixed enumeration of trigger and action handlers,
// registered once at startup.
type Registry struct {
	logger    *slog.Logger
	validator *validator.Validate
	actions   map[string]protocol.ActionHandler
	triggers  map[models.TriggerType]protocol.TriggerHandler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		validator: validator.New(),
		actions:   make(map[string]protocol.ActionHandler),
		triggers:  make(map[models.TriggerType]protocol.TriggerHandler),
	}
}

func (r *Registry) RegisterAction(actionType string, handler protocol.ActionHandler) {
	r.actions[actionType] = handler
}

func (r *Registry) RegisterTrigger(handler protocol.TriggerHandler) {
	r.triggers[handler.Type()] = handler
}

func (r *Registry) ActionHandler(actionType string) (protocol.ActionHandler, error) {
	handler, ok := r.actions[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}

	return handler, nil
}

func (r *Registry) TriggerHandler(triggerType models.TriggerType) (protocol.TriggerHandler, error) {
	handler, ok := r.triggers[triggerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTriggerType, triggerType)
	}

	return handler, nil
}

// RegisterWorkflowTrigger validates the workflow's trigger config against
// its schema and handler, then starts the live listener.
func (r *Registry) RegisterWorkflowTrigger(ctx context.Context, workflow *models.Workflow) error {
	handler, err := r.TriggerHandler(workflow.Trigger.Type)
	if err != nil {
		return err
	}

	if err := r.validator.Struct(workflow); err != nil {
		return fmt.Errorf("invalid workflow %s: %w", workflow.ID, err)
	}

	if err := ValidateTriggerConfig(workflow.Trigger.Type, workflow.Trigger.Config); err != nil {
		return err
	}

	if err := handler.Validate(workflow.Trigger.Config); err != nil {
		return fmt.Errorf("invalid %s trigger config for workflow %s: %w", workflow.Trigger.Type, workflow.ID, err)
	}

	return handler.Register(ctx, workflow)
}

// UnregisterWorkflow calls Unregister on every registered trigger handler for
// the workflow id. Per-handler errors are logged and swallowed so one
// handler's failure cannot block cleanup of the others.
func (r *Registry) UnregisterWorkflow(ctx context.Context, workflowID string) {
	for triggerType, handler := range r.triggers {
		if err := handler.Unregister(ctx, workflowID); err != nil {
			r.logger.WarnContext(ctx, "Trigger unregister failed",
				"workflow_id", workflowID,
				"trigger_type", triggerType,
				"error", err)
		}
	}
}

// Close releases every handler holding long-lived resources.
func (r *Registry) Close(ctx context.Context) {
	for triggerType, handler := range r.triggers {
		closer, ok := handler.(protocol.Closer)
		if !ok {
			continue
		}

		if err := closer.Close(ctx); err != nil {
			r.logger.WarnContext(ctx, "Trigger handler close failed",
				"trigger_type", triggerType,
				"error", err)
		}
	}
}
