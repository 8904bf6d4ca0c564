package automation

import (
	"context"
	"maps"
	"time"

	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
)

var _ protocol.Subscriber = (*Engine)(nil)

func (e *Engine) TaskCreated(ctx context.Context, task models.Task) {
	e.ProcessEvent(ctx, models.NewAutomationEvent(models.EventTaskCreated, models.SourceTaskManager, task.AsMap(), task.ID))
}

func (e *Engine) TaskUpdated(ctx context.Context, taskID string, changes map[string]any) {
	data := maps.Clone(changes)
	if data == nil {
		data = make(map[string]any)
	}

	e.ProcessEvent(ctx, models.NewAutomationEvent(models.EventTaskUpdated, models.SourceTaskManager, data, taskID))
}

func (e *Engine) TaskCompleted(ctx context.Context, task models.Task) {
	e.ProcessEvent(ctx, models.NewAutomationEvent(models.EventTaskCompleted, models.SourceTaskManager, task.AsMap(), task.ID))
}

// LearningInsightGenerated keeps the insight for Insights and processes it as an event.
func (e *Engine) LearningInsightGenerated(ctx context.Context, insight models.LearningInsight) {
	if !e.running.Load() {
		return
	}

	e.insightsMu.Lock()
	e.learning = append(e.learning, models.Insight{
		ID:              insight.ID,
		Type:            models.InsightLearning,
		Title:           insight.Title,
		Description:     insight.Description,
		Confidence:      insight.Confidence,
		Actionable:      len(insight.Recommendations) > 0,
		Recommendations: append([]string(nil), insight.Recommendations...),
		Data:            maps.Clone(insight.Data),
		CreatedAt:       time.Now().UTC(),
	})

	if overflow := len(e.learning) - maxLearningInsights; overflow > 0 {
		e.learning = append([]models.Insight(nil), e.learning[overflow:]...)
	}
	e.insightsMu.Unlock()

	taskID, _ := insight.Data["task_id"].(string)

	e.ProcessEvent(ctx, models.NewAutomationEvent(models.EventLearningInsight, models.SourceLearningEngine, insight.AsMap(), taskID))
}

func (e *Engine) PriorityChanged(ctx context.Context, taskID string, change models.PriorityChange) {
	data := map[string]any{
		"old_priority": change.OldPriority,
		"new_priority": change.NewPriority,
		"reason":       change.Reason,
	}

	e.ProcessEvent(ctx, models.NewAutomationEvent(models.EventPriorityChanged, models.SourcePriorityManager, data, taskID))
}
