package models

import "time"

// LogLevel of an execution log entry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// ExecutionLog is one caller-visible log line of a rule or workflow execution.
type ExecutionLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// AutomationExecutionResult is the outcome of one rule evaluation or workflow run.
type AutomationExecutionResult struct {
	Success           bool           `json:"success"`
	RuleID            string         `json:"rule_id,omitempty"`
	WorkflowID        string         `json:"workflow_id,omitempty"`
	ExecutionID       string         `json:"execution_id"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Duration          time.Duration  `json:"duration"`
	ActionsExecuted   int            `json:"actions_executed"`
	ActionsSuccessful int            `json:"actions_successful"`
	ActionsFailed     int            `json:"actions_failed"`
	Error             string         `json:"error,omitempty"`
	Logs              []ExecutionLog `json:"logs"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// FailedResult builds a synthetic failed result for an execution that could not run.
func FailedResult(executionID string, start time.Time, err error) AutomationExecutionResult {
	end := time.Now().UTC()

	return AutomationExecutionResult{
		Success:     false,
		ExecutionID: executionID,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Error:       err.Error(),
		Logs: []ExecutionLog{
			{Timestamp: end, Level: LogError, Message: err.Error()},
		},
		Metadata: make(map[string]any),
	}
}

// LogBuffer accumulates execution logs up to a fixed size. Entries past the
// limit are dropped and counted.
type LogBuffer struct {
	limit   int
	entries []ExecutionLog
	dropped int
}

// NewLogBuffer creates a buffer keeping at most limit entries. A limit <= 0 keeps everything.
func NewLogBuffer(limit int) *LogBuffer {
	return &LogBuffer{limit: limit}
}

// Add appends a log entry.
func (b *LogBuffer) Add(level LogLevel, message string, context map[string]any) {
	if b.limit > 0 && len(b.entries) >= b.limit {
		b.dropped++
		return
	}

	b.entries = append(b.entries, ExecutionLog{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   context,
	})
}

// Entries returns the collected log entries.
func (b *LogBuffer) Entries() []ExecutionLog {
	if b.entries == nil {
		return []ExecutionLog{}
	}

	return b.entries
}

// Dropped returns how many entries were discarded past the limit.
func (b *LogBuffer) Dropped() int {
	return b.dropped
}
