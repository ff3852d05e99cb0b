// Package persistence provides standardized error types for storage operations.
package persistence

import "errors"

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrActionNotFound indicates an action was not found within a workflow.
	ErrActionNotFound = errors.New("action not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStepNotFound indicates an execution step was not found by the given identifier.
	ErrStepNotFound = errors.New("execution step not found")

	// ErrExecutionTerminal indicates an update was attempted on an execution
	// that already reached a terminal status.
	ErrExecutionTerminal = errors.New("execution already terminal")
)

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
