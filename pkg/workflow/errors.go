package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no workflow is registered under the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowDisabled indicates the workflow exists but is disabled.
	ErrWorkflowDisabled = errors.New("workflow disabled")

	// ErrInvalidWorkflow indicates a workflow is missing its id or has duplicate step ids.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrManagerStopped is reported in results of executions requested while stopped.
	ErrManagerStopped = errors.New("workflow manager is not running")

	// ErrExecutionCancelled is reported in results of executions cancelled by Stop.
	ErrExecutionCancelled = errors.New("workflow execution cancelled")

	// ErrStepNotFound indicates a transition named a step the workflow does not have.
	ErrStepNotFound = errors.New("step not found")

	// ErrTooManyTransitions indicates a run exceeded the transition limit, usually a cycle.
	ErrTooManyTransitions = errors.New("too many step transitions")

	// ErrExecutionNotFound indicates no active execution has the given id.
	ErrExecutionNotFound = errors.New("execution not found")
)

// WorkflowError wraps workflow-related errors with the operation and workflow id.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowDisabled checks if an error indicates a workflow is disabled.
func IsWorkflowDisabled(err error) bool {
	return errors.Is(err, ErrWorkflowDisabled)
}
