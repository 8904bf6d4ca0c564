package protocol

import (
	"context"

	"github.com/dukex/operion-automation/pkg/models"
)

// TaskService is the external task store actions delegate to.
type TaskService interface {
	UpdateTask(ctx context.Context, taskID string, changes map[string]any) error
	DecomposeTask(ctx context.Context, taskID string, options map[string]any) error
}

// PriorityService changes task priorities on behalf of automation.
type PriorityService interface {
	ChangePriority(ctx context.Context, taskID string, priority string, reason string) error
}

// AnalysisRunner runs analysis jobs such as a learning cycle.
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, analysisType string, params map[string]any) (map[string]any, error)
}

// Notifier sends a notification request to its delivery channel.
type Notifier interface {
	Send(ctx context.Context, notification models.Notification) error
}

// WorkflowRunner starts a workflow explicitly, as rule actions do.
type WorkflowRunner interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, variables map[string]any) (models.AutomationExecutionResult, error)
}
