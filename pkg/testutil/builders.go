// Package testutil provides test data builders and an in-memory persistence
// used across package tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/hookflow/hookflow/pkg/models"
)

// CreateTestWorkflow builds an enabled manual-trigger workflow with default
// values that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:      uuid.New().String(),
		OwnerID: "user-1",
		Name:    "Test Workflow",
		Enabled: true,
		Trigger: models.Trigger{
			Type:   models.TriggerTypeManual,
			Config: map[string]any{},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithTrigger sets the trigger type and configuration.
func WithTrigger(triggerType models.TriggerType, config map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = models.Trigger{Type: triggerType, Config: config}
	}
}

// WithActions sets the action graph.
func WithActions(actions ...*models.Action) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Actions = actions
	}
}

// WithOwner sets the owning user.
func WithOwner(ownerID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.OwnerID = ownerID
	}
}

// Disabled marks the workflow disabled.
func Disabled() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Enabled = false
	}
}

// CreateTestAction builds a log action with default values that can be
// overridden.
func CreateTestAction(id string, order int, overrides ...func(*models.Action)) *models.Action {
	action := &models.Action{
		ID:     id,
		Type:   "log",
		Name:   "Test Action " + id,
		Order:  order,
		Config: map[string]any{"message": "test"},
	}

	for _, override := range overrides {
		override(action)
	}

	return action
}

// WithNext chains the action to its sequential successor.
func WithNext(nextID string) func(*models.Action) {
	return func(a *models.Action) {
		a.NextActionID = &nextID
	}
}

// WithParent attaches the action to a composite parent, optionally under a
// branch label.
func WithParent(parentID, branch string) func(*models.Action) {
	return func(a *models.Action) {
		a.ParentActionID = &parentID
		a.Branch = branch
	}
}

// WithType sets the action type and config.
func WithType(actionType string, config map[string]any) func(*models.Action) {
	return func(a *models.Action) {
		a.Type = actionType
		a.Config = config
	}
}

// WithRetry sets the retry policy.
func WithRetry(policyType models.RetryPolicyType, delayMS, attempts int) func(*models.Action) {
	return func(a *models.Action) {
		a.Retry = &models.RetryPolicy{Type: policyType, DelayMS: delayMS, Attempts: attempts}
	}
}
