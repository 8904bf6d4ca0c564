package runworkflow

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	gotID   string
	gotVars map[string]any
	result  models.AutomationExecutionResult
	err     error
}

func (s *stubRunner) ExecuteWorkflow(_ context.Context, id string, vars map[string]any) (models.AutomationExecutionResult, error) {
	s.gotID = id
	s.gotVars = vars

	return s.result, s.err
}

func TestActionFactory_Create(t *testing.T) {
	factory := NewActionFactory(&stubRunner{})
	assert.Equal(t, "execute_workflow", factory.ID())

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)

	_, err = factory.Create(map[string]any{"workflow_id": "task-completion"})
	require.NoError(t, err)
}

func TestAction_Execute(t *testing.T) {
	runner := &stubRunner{result: models.AutomationExecutionResult{Success: true, ExecutionID: "exec-1"}}

	action, err := NewActionFactory(runner).Create(map[string]any{
		"workflow_id": "task-completion",
		"variables":   map[string]any{"origin": "rule {{ .rule_id }}"},
	})
	require.NoError(t, err)

	event := models.NewAutomationEvent(models.EventTaskCompleted, models.SourceTaskManager, map[string]any{"title": "Report"}, "t1")

	out, err := action.Execute(t.Context(), protocol.ActionInput{Event: &event, RuleID: "r1"}, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, "exec-1", out["execution_id"])
	assert.Equal(t, "task-completion", runner.gotID)
	assert.Equal(t, "t1", runner.gotVars["task_id"])
	assert.Equal(t, "rule r1", runner.gotVars["origin"])
	assert.Equal(t, map[string]any{"title": "Report"}, runner.gotVars["event_data"])
}

func TestAction_ExecuteFailures(t *testing.T) {
	failed := &stubRunner{result: models.AutomationExecutionResult{Success: false, ExecutionID: "exec-2", Error: "step failed"}}

	action, err := NewActionFactory(failed).Create(map[string]any{"workflow_id": "wf"})
	require.NoError(t, err)

	out, err := action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowFailed)
	assert.Equal(t, false, out["success"])

	missing := &stubRunner{err: errors.New("workflow not found")}

	action, err = NewActionFactory(missing).Create(map[string]any{"workflow_id": "wf"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow not found")
}
