// Package events defines the typed events exchanged over the event bus, one
// topic per event kind.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topics. Trigger events and lifecycle events flow on separate topics so
// ordering and backpressure stay independent per kind.
const (
	WorkflowTriggersTopic  = "hookflow.workflow.triggers"
	WorkflowLifecycleTopic = "hookflow.workflow.lifecycle"
)

const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	WorkflowCreatedEvent EventType = "workflow.created"
	WorkflowUpdatedEvent EventType = "workflow.updated"
	WorkflowDeletedEvent EventType = "workflow.deleted"

	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	SourceConnectedEvent EventType = "source.connected"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         "event-" + uuid.New().String()[:8],
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WorkflowTriggered is the durable "run this workflow" event produced by a
// trigger implementation and consumed by a worker.
type WorkflowTriggered struct {
	BaseEvent

	TriggerType string         `json:"trigger_type"`
	OwnerID     string         `json:"owner_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e WorkflowTriggered) GetType() EventType { return WorkflowTriggeredEvent }
func (e WorkflowTriggered) Topic() string      { return WorkflowTriggersTopic }

type WorkflowCreated struct {
	BaseEvent
}

func (e WorkflowCreated) GetType() EventType { return WorkflowCreatedEvent }
func (e WorkflowCreated) Topic() string      { return WorkflowLifecycleTopic }

type WorkflowUpdated struct {
	BaseEvent

	Enabled bool `json:"enabled"`
}

func (e WorkflowUpdated) GetType() EventType { return WorkflowUpdatedEvent }
func (e WorkflowUpdated) Topic() string      { return WorkflowLifecycleTopic }

type WorkflowDeleted struct {
	BaseEvent
}

func (e WorkflowDeleted) GetType() EventType { return WorkflowDeletedEvent }
func (e WorkflowDeleted) Topic() string      { return WorkflowLifecycleTopic }

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }
func (e ExecutionStarted) Topic() string      { return WorkflowLifecycleTopic }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Result      map[string]any `json:"result,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }
func (e ExecutionCompleted) Topic() string      { return WorkflowLifecycleTopic }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
	DurationMS  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }
func (e ExecutionFailed) Topic() string      { return WorkflowLifecycleTopic }

// SourceConnected signals that a user connected an external account, so push
// triggers depending on it can be (re)registered.
type SourceConnected struct {
	BaseEvent

	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

func (e SourceConnected) GetType() EventType { return SourceConnectedEvent }
func (e SourceConnected) Topic() string      { return WorkflowLifecycleTopic }
