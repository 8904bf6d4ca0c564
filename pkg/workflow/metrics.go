package workflow

import (
	"fmt"
	"time"

	"github.com/dukex/operion-automation/pkg/models"
)

const topActionsLimit = 10

func (m *Manager) Metrics() models.WorkflowMetrics {
	today := m.now().Format(time.DateOnly)

	m.activeMu.Lock()
	running := len(m.active)
	m.activeMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := models.WorkflowMetrics{
		TotalWorkflows:       len(m.workflows),
		RunningExecutions:    running,
		TotalExecutions:      m.stats.total,
		SuccessfulExecutions: m.stats.success,
		FailedExecutions:     m.stats.failure,
		AverageExecutionTime: m.stats.avgMs,
	}

	if m.stats.todayKey == today {
		out.ExecutionsToday = m.stats.today
	}

	usage := make(map[string]int64)

	for _, id := range m.order {
		workflow := m.workflows[id]
		if workflow.Enabled {
			out.ActiveWorkflows++
		}

		for _, step := range workflow.Steps {
			usage[step.Type] += workflow.Execution.TotalExecutions
		}
	}

	out.TopActions = models.TopActions(usage, topActionsLimit)

	return out
}

// Insights reports workflows whose average run is above the long-running threshold.
func (m *Manager) Insights() []models.Insight {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	thresholdMs := float64(m.thresholds.LongWorkflow) / float64(time.Millisecond)

	var insights []models.Insight

	for _, id := range m.order {
		workflow := m.workflows[id]
		if workflow.Execution.TotalExecutions == 0 || workflow.Execution.AverageExecutionTime <= thresholdMs {
			continue
		}

		insights = append(insights, models.Insight{
			ID:    "long-running-workflow-" + workflow.ID,
			Type:  models.InsightPerformance,
			Title: "Long-running workflow: " + workflow.Name,
			Description: fmt.Sprintf("Workflow %s averages %.1fs per run, above the %.0fs threshold",
				workflow.Name, workflow.Execution.AverageExecutionTime/1000, thresholdMs/1000),
			Confidence: 0.75,
			Actionable: true,
			Recommendations: []string{
				"Split the workflow into smaller workflows",
				"Check the slowest steps for external latency",
			},
			Data: map[string]any{
				"workflow_id":               workflow.ID,
				"average_execution_time_ms": workflow.Execution.AverageExecutionTime,
				"total_executions":          workflow.Execution.TotalExecutions,
			},
			CreatedAt: now,
		})
	}

	return insights
}

// Optimize is a read-only advisory pass over the workflow set.
func (m *Manager) Optimize() models.OptimizationReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := models.OptimizationReport{Recommendations: []string{}}

	for _, id := range m.order {
		workflow := m.workflows[id]
		if !workflow.Enabled {
			continue
		}

		if len(workflow.Steps) == 0 {
			report.Optimizations++
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Workflow %s has no steps; remove or disable it", workflow.ID))

			continue
		}

		if workflow.Execution.TotalExecutions == 0 {
			report.Optimizations++
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Workflow %s has never executed; check which rules start it", workflow.ID))
		}
	}

	return report
}
