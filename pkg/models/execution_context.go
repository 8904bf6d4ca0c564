package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status ends an execution.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionRunning
}

// WorkflowExecutionContext is the run-time state of one workflow execution.
type WorkflowExecutionContext struct {
	WorkflowID  string          `json:"workflow_id"`
	ExecutionID string          `json:"execution_id"`
	StartTime   time.Time       `json:"start_time"`
	CurrentStep string          `json:"current_step,omitempty"`
	Variables   map[string]any  `json:"variables"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
}
