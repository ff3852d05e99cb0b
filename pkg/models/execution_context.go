package models

// ExecutionContext is the read view handed to action handlers and template
// rendering during one run. StepResults is keyed by the order of previously
// completed steps.
type ExecutionContext struct {
	ExecutionID      string         `json:"execution_id"`
	WorkflowID       string         `json:"workflow_id"`
	UserID           string         `json:"user_id"`
	TriggerData      map[string]any `json:"trigger_data,omitempty"`
	StepResults      map[int]any    `json:"step_results,omitempty"`
	Variables        map[string]any `json:"variables,omitempty"`
	CurrentStepOrder int            `json:"current_step_order"`
}

// Clone returns a copy with its own StepResults and Variables maps, so
// parallel branches and loop iterations never share mutable state.
func (c ExecutionContext) Clone() ExecutionContext {
	clone := c

	clone.StepResults = make(map[int]any, len(c.StepResults))
	for k, v := range c.StepResults {
		clone.StepResults[k] = v
	}

	clone.Variables = make(map[string]any, len(c.Variables))
	for k, v := range c.Variables {
		clone.Variables[k] = v
	}

	return clone
}
