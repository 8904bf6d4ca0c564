package automation

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/dukex/operion-automation/pkg/models"
	"github.com/shirou/gopsutil/v4/process"
)

const topActionsLimit = 10

// Metrics merges the rule engine, workflow manager and event processor views.
func (e *Engine) Metrics(ctx context.Context) models.AutomationMetrics {
	rm := e.rules.Metrics()
	wm := e.workflows.Metrics()
	em := e.events.Metrics()

	total := rm.TotalExecutions + wm.TotalExecutions
	successful := rm.SuccessfulExecutions + wm.SuccessfulExecutions
	failed := rm.FailedExecutions + wm.FailedExecutions

	out := models.AutomationMetrics{
		TotalRules:      rm.TotalRules,
		ActiveRules:     rm.ActiveRules,
		TotalWorkflows:  wm.TotalWorkflows,
		ActiveWorkflows: wm.ActiveWorkflows,
		TotalExecutions: total,
		ExecutionsToday: rm.ExecutionsToday + wm.ExecutionsToday,
		TopActions:      mergeTopActions(rm.TopActions, wm.TopActions),
		TopEventTypes:   em.TopEventTypes,
		Resources:       e.resources(ctx),
		CollectedAt:     time.Now().UTC(),
	}

	if total > 0 {
		out.SuccessRate = float64(successful) / float64(total)
		out.ErrorRate = float64(failed) / float64(total)
		out.AverageExecutionTime = (rm.AverageExecutionTime*float64(rm.TotalExecutions) +
			wm.AverageExecutionTime*float64(wm.TotalExecutions)) / float64(total)
	}

	return out
}

func mergeTopActions(lists ...[]models.ActionUsage) []models.ActionUsage {
	usage := make(map[string]int64)

	for _, list := range lists {
		for _, u := range list {
			usage[u.Type] += u.Count
		}
	}

	return models.TopActions(usage, topActionsLimit)
}

func (e *Engine) resources(ctx context.Context) models.ResourceUsage {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	usage := models.ResourceUsage{
		HeapAlloc:  mem.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		e.logger.DebugContext(ctx, "Process stats unavailable", "error", err)

		return usage
	}

	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		usage.MemoryRSS = info.RSS
	}

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		usage.CPUPercent = cpu
	}

	return usage
}

// Insights merges component insights, external learning insights and the
// engine-wide threshold checks, most confident first.
func (e *Engine) Insights(ctx context.Context) []models.Insight {
	insights := append([]models.Insight{}, e.rules.Insights()...)
	insights = append(insights, e.workflows.Insights()...)

	e.insightsMu.Lock()
	insights = append(insights, e.learning...)
	e.insightsMu.Unlock()

	thresholds := e.Config().Thresholds
	m := e.Metrics(ctx)
	now := time.Now().UTC()

	slowMs := float64(thresholds.SlowExecution) / float64(time.Millisecond)
	if m.TotalExecutions > 0 && m.AverageExecutionTime > slowMs {
		insights = append(insights, models.Insight{
			ID:          "slow-execution",
			Type:        models.InsightPerformance,
			Title:       "Average execution time is above threshold",
			Description: fmt.Sprintf("Automations take %.0fms on average, above the %.0fms threshold", m.AverageExecutionTime, slowMs),
			Confidence:  0.9,
			Actionable:  true,
			Recommendations: []string{
				"Review slow actions and their timeouts",
				"Reduce retries for actions that fail consistently",
			},
			Data:      map[string]any{"average_execution_time_ms": m.AverageExecutionTime, "threshold_ms": slowMs},
			CreatedAt: now,
		})
	}

	if m.TotalExecutions > 0 && m.ErrorRate > thresholds.ErrorRate {
		insights = append(insights, models.Insight{
			ID:          "high-error-rate",
			Type:        models.InsightError,
			Title:       "Error rate is above threshold",
			Description: fmt.Sprintf("%.1f%% of executions failed, above the %.1f%% threshold", m.ErrorRate*100, thresholds.ErrorRate*100),
			Confidence:  0.95,
			Actionable:  true,
			Recommendations: []string{
				"Inspect failing rules and workflows in the execution history",
			},
			Data:      map[string]any{"error_rate": m.ErrorRate, "threshold": thresholds.ErrorRate},
			CreatedAt: now,
		})
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Confidence > insights[j].Confidence
	})

	return insights
}

// OptimizePerformance runs every component's advisory pass and estimates the gain
// as ten percent per optimization found.
func (e *Engine) OptimizePerformance(ctx context.Context) models.OptimizationResult {
	reports := []models.OptimizationReport{e.rules.Optimize(), e.workflows.Optimize()}

	result := models.OptimizationResult{Recommendations: []string{}}
	for _, r := range reports {
		result.Optimizations += r.Optimizations
		result.Recommendations = append(result.Recommendations, r.Recommendations...)
	}

	result.EstimatedImprovement = float64(result.Optimizations) / 10 * 100

	e.logger.InfoContext(ctx, "Optimization pass finished",
		"optimizations", result.Optimizations,
		"estimated_improvement_percent", result.EstimatedImprovement,
	)

	return result
}
