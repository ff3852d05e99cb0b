// Package protocol defines the collaborator contracts between the trigger
// orchestration core and its surroundings: trigger handlers, action handlers,
// credential providers and push providers.
package protocol

import (
	"context"

	"github.com/hookflow/hookflow/pkg/models"
)

// TriggerCallback converts a detected signal into a "run this workflow"
// event. Implementations publish to the event bus; they never execute the
// workflow inline.
type TriggerCallback func(ctx context.Context, workflowID string, data map[string]any) error

// TriggerHandler manages the live listener lifecycle for one trigger type.
//
// Register must be idempotent: it best-effort unregisters any prior in-memory
// registration for the same workflow before creating a new one, so
// re-registration (health-check sweep racing a user update) deterministically
// leaves exactly one active listener.
type TriggerHandler interface {
	Type() models.TriggerType
	Validate(config map[string]any) error
	Register(ctx context.Context, workflow *models.Workflow) error
	Unregister(ctx context.Context, workflowID string) error
}

// Closer is implemented by trigger handlers that hold long-lived resources
// (timers, subscriptions) that must be released on process shutdown.
type Closer interface {
	Close(ctx context.Context) error
}
