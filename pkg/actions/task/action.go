// Package task implements the task_operation action.
package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

const (
	OperationUpdate    = "update"
	OperationDecompose = "decompose"
)

type ActionFactory struct {
	tasks protocol.TaskService
}

func NewActionFactory(tasks protocol.TaskService) *ActionFactory {
	return &ActionFactory{tasks: tasks}
}

func (*ActionFactory) ID() string {
	return "task_operation"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	operation, err := actions.RequiredString(f.ID(), config, "operation")
	if err != nil {
		return nil, err
	}

	if operation != OperationUpdate && operation != OperationDecompose {
		return nil, fmt.Errorf("task_operation: unsupported operation '%s'", operation)
	}

	return &Action{
		tasks:     f.tasks,
		operation: operation,
		taskID:    actions.String(config, "task_id", ""),
		changes:   actions.Map(config, "changes"),
		options:   actions.Map(config, "options"),
	}, nil
}

// Action updates or decomposes the task the input targets.
type Action struct {
	tasks     protocol.TaskService
	operation string
	taskID    string
	changes   map[string]any
	options   map[string]any
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	data := input.TemplateData()

	taskID := input.ResolveTaskID()
	if a.taskID != "" {
		rendered, err := template.RenderString(a.taskID, data)
		if err != nil {
			return nil, err
		}

		taskID = rendered
	}

	if taskID == "" {
		return nil, actions.ErrMissingTaskID
	}

	logger = logger.With("task_id", taskID, "operation", a.operation)

	switch a.operation {
	case OperationDecompose:
		if err := a.tasks.DecomposeTask(ctx, taskID, a.options); err != nil {
			return nil, fmt.Errorf("failed to decompose task %s: %w", taskID, err)
		}
	default:
		changes, err := template.RenderMap(a.changes, data)
		if err != nil {
			return nil, err
		}

		if err := a.tasks.UpdateTask(ctx, taskID, changes); err != nil {
			return nil, fmt.Errorf("failed to update task %s: %w", taskID, err)
		}
	}

	logger.InfoContext(ctx, "Task operation applied")

	return map[string]any{
		"task_id":   taskID,
		"operation": a.operation,
	}, nil
}
