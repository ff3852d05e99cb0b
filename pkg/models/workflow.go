// Package models defines the core domain models for trigger-driven workflow automation.
package models

import "time"

// TriggerType identifies the trigger implementation that starts a workflow.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypePushMail TriggerType = "push-mail"
	TriggerTypePushChat TriggerType = "push-chat"
)

// TriggerTypes lists every registered trigger type tag. Unregistering a
// workflow iterates over this set so a stale trigger of any type is cleaned up.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerTypeManual,
		TriggerTypeWebhook,
		TriggerTypeSchedule,
		TriggerTypePushMail,
		TriggerTypePushChat,
	}
}

// Trigger holds the type tag and the provider-specific configuration of a
// workflow's trigger. The configuration map is mutated by the owning trigger
// handler on register, renew and unregister; it is never replaced wholesale
// by anything else.
type Trigger struct {
	Type   TriggerType    `json:"type"   validate:"required"`
	Config map[string]any `json:"config"`
}

// Workflow is a user-defined automation: exactly one trigger plus a directed
// graph of actions.
type Workflow struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id" validate:"required"`
	Name      string    `json:"name"     validate:"required,min=3"`
	Enabled   bool      `json:"enabled"`
	Trigger   Trigger   `json:"trigger"`
	Actions   []*Action `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionByID returns the action with the given id, or nil.
func (w *Workflow) ActionByID(id string) *Action {
	for _, action := range w.Actions {
		if action.ID == id {
			return action
		}
	}

	return nil
}

// TriggerConfigString reads a string value from the trigger configuration.
func (w *Workflow) TriggerConfigString(key string) string {
	if w.Trigger.Config == nil {
		return ""
	}

	value, _ := w.Trigger.Config[key].(string)

	return value
}
