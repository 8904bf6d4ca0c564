package models

import (
	"sort"
	"time"
)

// ActionUsage counts how often an action type is exercised.
type ActionUsage struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// EventTypeCount counts events observed for one type.
type EventTypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// RuleMetrics summarizes the rule engine.
type RuleMetrics struct {
	TotalRules           int           `json:"total_rules"`
	ActiveRules          int           `json:"active_rules"`
	TotalExecutions      int64         `json:"total_executions"`
	ExecutionsToday      int64         `json:"executions_today"`
	SuccessfulExecutions int64         `json:"successful_executions"`
	FailedExecutions     int64         `json:"failed_executions"`
	AverageExecutionTime float64       `json:"average_execution_time_ms"`
	TopActions           []ActionUsage `json:"top_actions"`
}

// WorkflowMetrics summarizes the workflow manager.
type WorkflowMetrics struct {
	TotalWorkflows       int           `json:"total_workflows"`
	ActiveWorkflows      int           `json:"active_workflows"`
	RunningExecutions    int           `json:"running_executions"`
	TotalExecutions      int64         `json:"total_executions"`
	ExecutionsToday      int64         `json:"executions_today"`
	SuccessfulExecutions int64         `json:"successful_executions"`
	FailedExecutions     int64         `json:"failed_executions"`
	AverageExecutionTime float64       `json:"average_execution_time_ms"`
	TopActions           []ActionUsage `json:"top_actions"`
}

// EventMetrics summarizes the event processor.
type EventMetrics struct {
	TotalEvents   int64            `json:"total_events"`
	TopEventTypes []EventTypeCount `json:"top_event_types"`
}

// ResourceUsage is a snapshot of the hosting process.
type ResourceUsage struct {
	MemoryRSS  uint64  `json:"memory_rss_bytes"`
	HeapAlloc  uint64  `json:"heap_alloc_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// AutomationMetrics is the merged view exposed by the automation engine.
type AutomationMetrics struct {
	TotalRules           int              `json:"total_rules"`
	ActiveRules          int              `json:"active_rules"`
	TotalWorkflows       int              `json:"total_workflows"`
	ActiveWorkflows      int              `json:"active_workflows"`
	TotalExecutions      int64            `json:"total_executions"`
	ExecutionsToday      int64            `json:"executions_today"`
	SuccessRate          float64          `json:"success_rate"`
	ErrorRate            float64          `json:"error_rate"`
	AverageExecutionTime float64          `json:"average_execution_time_ms"`
	TopActions           []ActionUsage    `json:"top_actions"`
	TopEventTypes        []EventTypeCount `json:"top_event_types"`
	Resources            ResourceUsage    `json:"resources"`
	CollectedAt          time.Time        `json:"collected_at"`
}

// InsightType classifies an insight.
type InsightType string

const (
	InsightPerformance  InsightType = "performance"
	InsightOptimization InsightType = "optimization"
	InsightError        InsightType = "error"
	InsightLearning     InsightType = "learning"
)

// Insight is a derived, human-readable observation with a confidence score.
type Insight struct {
	ID              string         `json:"id"`
	Type            InsightType    `json:"type"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Confidence      float64        `json:"confidence"`
	Actionable      bool           `json:"actionable"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// OptimizationReport is produced by a component's advisory optimize pass.
type OptimizationReport struct {
	Optimizations   int      `json:"optimizations"`
	Recommendations []string `json:"recommendations"`
}

// OptimizationResult is the merged outcome of an engine-wide optimization pass.
type OptimizationResult struct {
	Optimizations        int      `json:"optimizations"`
	Recommendations      []string `json:"recommendations"`
	EstimatedImprovement float64  `json:"estimated_improvement_percent"`
}

// TopActions orders usage by count descending, then type, keeping at most limit
// non-zero entries.
func TopActions(usage map[string]int64, limit int) []ActionUsage {
	out := make([]ActionUsage, 0, len(usage))

	for actionType, count := range usage {
		if count > 0 {
			out = append(out, ActionUsage{Type: actionType, Count: count})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Type < out[j].Type
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out
}
