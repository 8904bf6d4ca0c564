package priority

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPriorityService struct {
	mock.Mock
}

func (m *mockPriorityService) ChangePriority(ctx context.Context, taskID, priority, reason string) error {
	args := m.Called(ctx, taskID, priority, reason)

	return args.Error(0)
}

func TestActionFactory_Create(t *testing.T) {
	factory := NewActionFactory(&mockPriorityService{})
	assert.Equal(t, "change_priority", factory.ID())

	_, err := factory.Create(map[string]any{"priority": "urgent"})
	require.NoError(t, err)

	_, err = factory.Create(map[string]any{})
	require.Error(t, err)

	_, err = factory.Create(map[string]any{"priority": "critical"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown priority")
}

func TestAction_Execute(t *testing.T) {
	priorities := &mockPriorityService{}
	priorities.On("ChangePriority", mock.Anything, "t1", "urgent", "overdue task t1").Return(nil)

	action, err := NewActionFactory(priorities).Create(map[string]any{
		"priority": "urgent",
		"reason":   "overdue task {{ .task_id }}",
	})
	require.NoError(t, err)

	out, err := action.Execute(t.Context(), protocol.ActionInput{TaskID: "t1"}, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, "urgent", out["priority"])
	assert.Equal(t, "overdue task t1", out["reason"])
	priorities.AssertExpectations(t)
}

func TestAction_ExecuteErrors(t *testing.T) {
	priorities := &mockPriorityService{}
	priorities.On("ChangePriority", mock.Anything, "t1", "high", "automation rule").Return(errors.New("locked"))

	action, err := NewActionFactory(priorities).Create(map[string]any{"priority": "high"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	assert.ErrorIs(t, err, actions.ErrMissingTaskID)

	_, err = action.Execute(t.Context(), protocol.ActionInput{TaskID: "t1"}, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}
