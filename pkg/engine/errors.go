package engine

import (
	"errors"
	"fmt"
)

// ErrWorkflowDisabled is returned when a trigger fires for a disabled
// workflow. No execution record is created in that case.
var ErrWorkflowDisabled = errors.New("workflow is disabled")

// FatalGraphError marks a structurally broken action graph. The execution
// fails immediately without retry; only a workflow update can fix it.
type FatalGraphError struct {
	WorkflowID string
	Err        error
}

func (e *FatalGraphError) Error() string {
	return fmt.Sprintf("fatal graph error in workflow %s: %v", e.WorkflowID, e.Err)
}

func (e *FatalGraphError) Unwrap() error { return e.Err }

// ConfigurationError marks invalid user-authored configuration detected at
// validation or render time. Never retried.
type ConfigurationError struct {
	ActionID string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in action %s: %v", e.ActionID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// HandlerError wraps an action handler failure after its retry policy is
// exhausted. It is recorded on the step and fails the execution; the engine
// itself never re-raises it past the run.
type HandlerError struct {
	ActionID string
	Attempts int
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("action %s failed after %d attempt(s): %v", e.ActionID, e.Attempts, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TransientInfraError marks an infrastructure failure (persistence, queue,
// bus) that a caller may retry with backoff.
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient infrastructure error during %s: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error { return e.Err }
