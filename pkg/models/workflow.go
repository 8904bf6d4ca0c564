package models

import "time"

// Workflow is a named, versioned multi-step procedure.
type Workflow struct {
	ID          string            `json:"id"                    yaml:"id"                    validate:"required"`
	Name        string            `json:"name"                  yaml:"name"                  validate:"required"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string            `json:"version"               yaml:"version"`
	Enabled     bool              `json:"enabled"               yaml:"enabled"`
	Steps       []WorkflowStep    `json:"steps"                 yaml:"steps"                 validate:"dive"`
	Metadata    Metadata          `json:"metadata"              yaml:"metadata,omitempty"`
	Execution   WorkflowExecution `json:"execution"             yaml:"-"`
}

// WorkflowStep is one node of the workflow graph. OnSuccess and OnFailure name the
// next step; an empty edge terminates the run.
type WorkflowStep struct {
	ID        string         `json:"id"                   yaml:"id"                   validate:"required"`
	Name      string         `json:"name"                 yaml:"name"`
	Type      string         `json:"type"                 yaml:"type"                 validate:"required"`
	Config    map[string]any `json:"config,omitempty"     yaml:"config,omitempty"`
	OnSuccess string         `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure string         `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// WorkflowExecution holds the running statistics of a workflow.
type WorkflowExecution struct {
	TotalExecutions      int64      `json:"total_executions"`
	SuccessfulExecutions int64      `json:"successful_executions"`
	FailedExecutions     int64      `json:"failed_executions"`
	AverageExecutionTime float64    `json:"average_execution_time_ms"`
	LastExecution        *time.Time `json:"last_execution,omitempty"`
}

// Record adds one run outcome to the statistics.
func (e *WorkflowExecution) Record(duration time.Duration, success bool, at time.Time) {
	e.TotalExecutions++
	if success {
		e.SuccessfulExecutions++
	} else {
		e.FailedExecutions++
	}

	e.AverageExecutionTime = RunningMean(e.AverageExecutionTime, e.TotalExecutions, duration)
	last := at
	e.LastExecution = &last
}

// StepByID returns the step with the given id.
func (w *Workflow) StepByID(id string) (WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return WorkflowStep{}, false
}
