// Package priority implements the change_priority action.
package priority

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

// Levels lists the priorities the action accepts.
var Levels = []string{"low", "medium", "high", "urgent"}

type ActionFactory struct {
	priorities protocol.PriorityService
}

func NewActionFactory(priorities protocol.PriorityService) *ActionFactory {
	return &ActionFactory{priorities: priorities}
}

func (*ActionFactory) ID() string {
	return "change_priority"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	priority, err := actions.RequiredString(f.ID(), config, "priority")
	if err != nil {
		return nil, err
	}

	if !slices.Contains(Levels, priority) {
		return nil, fmt.Errorf("change_priority: unknown priority '%s'", priority)
	}

	return &Action{
		priorities: f.priorities,
		priority:   priority,
		reason:     actions.String(config, "reason", "automation rule"),
	}, nil
}

type Action struct {
	priorities protocol.PriorityService
	priority   string
	reason     string
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	taskID := input.ResolveTaskID()
	if taskID == "" {
		return nil, actions.ErrMissingTaskID
	}

	reason, err := template.RenderString(a.reason, input.TemplateData())
	if err != nil {
		return nil, err
	}

	if err := a.priorities.ChangePriority(ctx, taskID, a.priority, reason); err != nil {
		return nil, fmt.Errorf("failed to change priority of task %s: %w", taskID, err)
	}

	logger.InfoContext(ctx, "Task priority changed", "task_id", taskID, "priority", a.priority)

	return map[string]any{
		"task_id":  taskID,
		"priority": a.priority,
		"reason":   reason,
	}, nil
}
