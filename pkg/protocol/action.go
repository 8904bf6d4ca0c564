// Package protocol defines the interfaces and contracts between the automation core
// and its pluggable actions and external collaborators.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/models"
)

// ActionInput is what an action sees of the execution that dispatched it.
type ActionInput struct {
	// Event is the triggering event for rule actions; nil for workflow steps started manually.
	Event       *models.AutomationEvent
	TaskID      string
	RuleID      string
	WorkflowID  string
	StepID      string
	ExecutionID string
	// Variables is the workflow scratch space. Rule actions get the event data.
	Variables map[string]any
}

// Action performs one unit of work. The returned map is merged into workflow variables
// under the step id.
type Action interface {
	Execute(ctx context.Context, input ActionInput, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates actions of one type from their configuration.
type ActionFactory interface {
	Create(config map[string]any) (Action, error)
	ID() string
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, input ActionInput, logger *slog.Logger) (map[string]any, error)

func (f ActionFunc) Execute(ctx context.Context, input ActionInput, logger *slog.Logger) (map[string]any, error) {
	return f(ctx, input, logger)
}

// ResolveTaskID returns the task the input targets: the explicit TaskID, then the event's
// task, then a "task_id" workflow variable.
func (in ActionInput) ResolveTaskID() string {
	if in.TaskID != "" {
		return in.TaskID
	}

	if in.Event != nil && in.Event.TaskID != "" {
		return in.Event.TaskID
	}

	if id, ok := in.Variables["task_id"].(string); ok {
		return id
	}

	return ""
}

// TemplateData is the data actions render their configuration against.
func (in ActionInput) TemplateData() map[string]any {
	data := map[string]any{
		"task_id":      in.ResolveTaskID(),
		"rule_id":      in.RuleID,
		"workflow_id":  in.WorkflowID,
		"step_id":      in.StepID,
		"execution_id": in.ExecutionID,
		"vars":         in.Variables,
		"data":         map[string]any{},
	}

	if in.Event != nil {
		data["event"] = map[string]any{
			"id":        in.Event.ID,
			"type":      string(in.Event.Type),
			"source":    in.Event.Source,
			"task_id":   in.Event.TaskID,
			"timestamp": in.Event.Timestamp,
		}
		if in.Event.Data != nil {
			data["data"] = in.Event.Data
		}
	}

	return data
}
