package protocol

import (
	"context"

	"github.com/dukex/operion-automation/pkg/models"
)

// Subscriber receives domain notifications from the task, learning and priority subsystems.
// The automation engine implements it; event sources call it once per notification.
type Subscriber interface {
	TaskCreated(ctx context.Context, task models.Task)
	TaskUpdated(ctx context.Context, taskID string, changes map[string]any)
	TaskCompleted(ctx context.Context, task models.Task)
	LearningInsightGenerated(ctx context.Context, insight models.LearningInsight)
	PriorityChanged(ctx context.Context, taskID string, change models.PriorityChange)
}
