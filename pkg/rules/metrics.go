package rules

import (
	"fmt"
	"time"

	"github.com/dukex/operion-automation/pkg/models"
)

const topActionsLimit = 10

// Metrics summarizes the rule set and its executions.
func (e *Engine) Metrics() models.RuleMetrics {
	today := e.now().Format(time.DateOnly)

	e.mu.RLock()
	defer e.mu.RUnlock()

	m := models.RuleMetrics{
		TotalRules:           len(e.rules),
		TotalExecutions:      e.stats.total,
		SuccessfulExecutions: e.stats.success,
		FailedExecutions:     e.stats.failure,
		AverageExecutionTime: e.stats.avgMs,
	}

	if e.stats.todayKey == today {
		m.ExecutionsToday = e.stats.today
	}

	usage := make(map[string]int64)

	for _, id := range e.order {
		rule := e.rules[id]
		if rule.Enabled {
			m.ActiveRules++
		}

		for _, action := range rule.Actions {
			usage[action.Type] += rule.Execution.ExecutionCount
		}
	}

	m.TopActions = models.TopActions(usage, topActionsLimit)

	return m
}

// Insights reports rules whose average execution time is above the slow-rule threshold.
func (e *Engine) Insights() []models.Insight {
	now := e.now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	thresholdMs := float64(e.thresholds.SlowRule) / float64(time.Millisecond)

	var insights []models.Insight

	for _, id := range e.order {
		rule := e.rules[id]
		if rule.Execution.ExecutionCount == 0 || rule.Execution.AverageExecutionTime <= thresholdMs {
			continue
		}

		insights = append(insights, models.Insight{
			ID:          "slow-rule-" + rule.ID,
			Type:        models.InsightPerformance,
			Title:       "Slow rule: " + rule.Name,
			Description: fmt.Sprintf("Rule %s averages %.0fms per execution, above the %.0fms threshold", rule.Name, rule.Execution.AverageExecutionTime, thresholdMs),
			Confidence:  0.8,
			Actionable:  true,
			Recommendations: []string{
				"Reduce the number of actions executed by the rule",
				"Tighten the rule conditions so it fires less often",
			},
			Data: map[string]any{
				"rule_id":                   rule.ID,
				"average_execution_time_ms": rule.Execution.AverageExecutionTime,
				"execution_count":           rule.Execution.ExecutionCount,
			},
			CreatedAt: now,
		})
	}

	return insights
}

// Optimize is a read-only advisory pass. It recommends reviewing enabled rules that have
// never executed.
func (e *Engine) Optimize() models.OptimizationReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report := models.OptimizationReport{Recommendations: []string{}}

	for _, id := range e.order {
		rule := e.rules[id]
		if !rule.Enabled || rule.Execution.ExecutionCount > 0 {
			continue
		}

		report.Optimizations++
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Rule %s has never executed; review its trigger and conditions", rule.ID))
	}

	return report
}
