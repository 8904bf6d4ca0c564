// Package runworkflow implements the execute_workflow action, which lets rules start
// workflows explicitly.
package runworkflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

// ErrWorkflowFailed is returned when the started workflow does not complete successfully.
var ErrWorkflowFailed = errors.New("workflow execution failed")

type ActionFactory struct {
	runner protocol.WorkflowRunner
}

func NewActionFactory(runner protocol.WorkflowRunner) *ActionFactory {
	return &ActionFactory{runner: runner}
}

func (*ActionFactory) ID() string {
	return "execute_workflow"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	workflowID, err := actions.RequiredString(f.ID(), config, "workflow_id")
	if err != nil {
		return nil, err
	}

	return &Action{
		runner:     f.runner,
		workflowID: workflowID,
		variables:  actions.Map(config, "variables"),
	}, nil
}

type Action struct {
	runner     protocol.WorkflowRunner
	workflowID string
	variables  map[string]any
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	data := input.TemplateData()

	variables, err := template.RenderMap(a.variables, data)
	if err != nil {
		return nil, err
	}

	if taskID := input.ResolveTaskID(); taskID != "" {
		if _, ok := variables["task_id"]; !ok {
			variables["task_id"] = taskID
		}
	}

	if input.Event != nil {
		variables["event"] = data["event"]
		variables["event_data"] = data["data"]
	}

	// A workflow run is never retried by the action invoker.
	result, err := a.runner.ExecuteWorkflow(ctx, a.workflowID, variables)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	logger.InfoContext(ctx, "Workflow executed",
		"workflow_id", a.workflowID,
		"execution_id", result.ExecutionID,
		"success", result.Success,
	)

	out := map[string]any{
		"workflow_id":  a.workflowID,
		"execution_id": result.ExecutionID,
		"success":      result.Success,
	}

	if !result.Success {
		return out, backoff.Permanent(fmt.Errorf("%w: %s (%s)", ErrWorkflowFailed, a.workflowID, result.Error))
	}

	return out, nil
}
