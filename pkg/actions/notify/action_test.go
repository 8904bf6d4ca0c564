package notify

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

type recordingNotifier struct {
	sent []models.Notification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, n models.Notification) error {
	if r.err != nil {
		return r.err
	}

	r.sent = append(r.sent, n)

	return nil
}

func TestActionFactory_Create(t *testing.T) {
	factory := NewActionFactory(&recordingNotifier{})
	assert.Equal(t, "send_notification", factory.ID())

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)

	action, err := factory.Create(map[string]any{"message": "hi", "recipients": []any{"ops"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, action.(*Action).recipients)
	assert.Equal(t, "automation", action.(*Action).notificationType)
}

func TestAction_Execute(t *testing.T) {
	notifier := &recordingNotifier{}

	action, err := NewActionFactory(notifier).Create(map[string]any{
		"type":     "task_completed",
		"message":  "Task {{ .data.title }} completed",
		"priority": "high",
	})
	require.NoError(t, err)

	event := models.NewAutomationEvent(models.EventTaskCompleted, models.SourceTaskManager, map[string]any{"title": "Report"}, "t1")

	out, err := action.Execute(t.Context(), protocol.ActionInput{Event: &event, WorkflowID: "wf"}, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, "Task Report completed", out["message"])

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "task_completed", notifier.sent[0].Type)
	assert.Equal(t, "high", notifier.sent[0].Priority)
	assert.Equal(t, "t1", notifier.sent[0].Data["task_id"])
	assert.Equal(t, "wf", notifier.sent[0].Data["workflow_id"])
}

func TestAction_ExecuteSinkError(t *testing.T) {
	action, err := NewActionFactory(&recordingNotifier{err: errors.New("smtp down")}).Create(map[string]any{"message": "hi"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}
