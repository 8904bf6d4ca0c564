package models

import "time"

// Condition types understood by the rule engine.
const (
	ConditionTaskProperty  = "task_property"
	ConditionTimeCondition = "time_condition"
)

// Condition operators.
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorContains    = "contains"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorExists      = "exists"
)

// Trigger makes a rule eligible for evaluation when an event of Type arrives.
type Trigger struct {
	Type   EventType      `json:"type"             yaml:"type"             validate:"required"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Condition is one conjunctive predicate evaluated against an event.
type Condition struct {
	Type     string `json:"type"            yaml:"type"            validate:"required"`
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Operator string `json:"operator"        yaml:"operator"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Action is one unit of work dispatched by type to a registered handler.
type Action struct {
	Type   string         `json:"type"             yaml:"type"             validate:"required"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Metadata describes the authoring side of a rule or workflow.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"         yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"         yaml:"updated_at,omitempty"`
	Category  string    `json:"category,omitempty" yaml:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"     yaml:"tags,omitempty"`
	Author    string    `json:"author,omitempty"   yaml:"author,omitempty"`
}

// RuleExecution holds the running statistics of a rule.
// It must only be mutated through Record by the owning engine.
type RuleExecution struct {
	ExecutionCount       int64      `json:"execution_count"`
	SuccessCount         int64      `json:"success_count"`
	FailureCount         int64      `json:"failure_count"`
	AverageExecutionTime float64    `json:"average_execution_time_ms"`
	LastTriggered        *time.Time `json:"last_triggered,omitempty"`
}

// Record adds one evaluation outcome to the statistics.
func (e *RuleExecution) Record(duration time.Duration, success bool, at time.Time) {
	e.ExecutionCount++
	if success {
		e.SuccessCount++
	} else {
		e.FailureCount++
	}

	e.AverageExecutionTime = RunningMean(e.AverageExecutionTime, e.ExecutionCount, duration)
	triggered := at
	e.LastTriggered = &triggered
}

// AutomationRule is a named policy that reacts to events with an ordered action list.
type AutomationRule struct {
	ID          string        `json:"id"                    yaml:"id"                    validate:"required"`
	Name        string        `json:"name"                  yaml:"name"                  validate:"required"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool          `json:"enabled"               yaml:"enabled"`
	Priority    int           `json:"priority"              yaml:"priority"`
	Trigger     Trigger       `json:"trigger"               yaml:"trigger"               validate:"required"`
	Conditions  []Condition   `json:"conditions,omitempty"  yaml:"conditions,omitempty"  validate:"dive"`
	Actions     []Action      `json:"actions"               yaml:"actions"               validate:"required,min=1,dive"`
	Metadata    Metadata      `json:"metadata"              yaml:"metadata,omitempty"`
	Execution   RuleExecution `json:"execution"             yaml:"-"`
}

// RunningMean folds duration into avg where n is the post-increment sample count.
func RunningMean(avg float64, n int64, duration time.Duration) float64 {
	if n <= 0 {
		return 0
	}

	ms := float64(duration) / float64(time.Millisecond)

	return (avg*float64(n-1) + ms) / float64(n)
}
