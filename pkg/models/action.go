package models

// Composite action type tags interpreted by the execution engine itself.
// Every other type tag resolves to a registered action handler.
const (
	ActionTypeConditional = "conditional"
	ActionTypeParallel    = "parallel"
	ActionTypeLoop        = "loop"
)

// IsCompositeActionType reports whether the engine interprets the given
// action type rather than dispatching it to an action handler.
func IsCompositeActionType(actionType string) bool {
	switch actionType {
	case ActionTypeConditional, ActionTypeParallel, ActionTypeLoop:
		return true
	default:
		return false
	}
}

// Branch labels for children of a conditional action.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Action is one node in a workflow's execution graph.
//
// NextActionID points to the sequential successor. ParentActionID, when set,
// names the composite action (conditional, parallel or loop) that owns this
// node; parent pointers are the authoritative composite-child representation,
// child lists are always derived from them.
type Action struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"  validate:"required"`
	Name           string         `json:"name"`
	Order          int            `json:"order"`
	Config         map[string]any `json:"config"`
	NextActionID   *string        `json:"next_action_id,omitempty"`
	ParentActionID *string        `json:"parent_action_id,omitempty"`
	Branch         string         `json:"branch,omitempty"` // "true" / "false" under a conditional parent
	Retry          *RetryPolicy   `json:"retry,omitempty"`
}

// RetryPolicyType selects the delay progression between attempts.
type RetryPolicyType string

const (
	RetryFixed       RetryPolicyType = "fixed"
	RetryExponential RetryPolicyType = "exponential"
)

// RetryPolicy bounds handler retries for a single action. Attempts counts
// total tries, not re-tries; Delay is the initial wait in milliseconds.
type RetryPolicy struct {
	Type     RetryPolicyType `json:"type"`
	DelayMS  int             `json:"delay"`
	Attempts int             `json:"attempts"`
}

// DelayForAttempt returns the wait before the given retry. attempt is
// 1-based: the delay applied after the attempt-th failure.
func (p *RetryPolicy) DelayForAttempt(attempt int) int {
	if p.Type != RetryExponential {
		return p.DelayMS
	}

	delay := p.DelayMS
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	return delay
}
