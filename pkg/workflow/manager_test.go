package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcFactory struct {
	id string
	fn protocol.ActionFunc
}

func (f funcFactory) ID() string { return f.id }

func (f funcFactory) Create(map[string]any) (protocol.Action, error) { return f.fn, nil }

func ok(_ context.Context, input protocol.ActionInput, _ *slog.Logger) (map[string]any, error) {
	return map[string]any{"step": input.StepID}, nil
}

func fail(context.Context, protocol.ActionInput, *slog.Logger) (map[string]any, error) {
	return nil, errors.New("step exploded")
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Retry.MaxRetries = 0
	cfg.DefaultTimeout = 5 * time.Second

	return cfg
}

func newTestManager(t *testing.T, extra ...protocol.ActionFactory) *Manager {
	t.Helper()

	reg := registry.NewRegistry(log.Discard())
	reg.RegisterAction(funcFactory{id: "ok", fn: ok})
	reg.RegisterAction(funcFactory{id: "fail", fn: fail})

	for _, f := range extra {
		reg.RegisterAction(f)
	}

	manager := NewManager(log.Discard(), reg, nil, testConfig())
	require.NoError(t, manager.Start(t.Context()))

	return manager
}

func enabled(id string, steps ...models.WorkflowStep) models.Workflow {
	return models.Workflow{ID: id, Name: "Workflow " + id, Version: "1", Enabled: true, Steps: steps}
}

func TestManager_LinearWorkflowCompletes(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("linear",
		models.WorkflowStep{ID: "one", Type: "ok", OnSuccess: "two"},
		models.WorkflowStep{ID: "two", Type: "ok"},
	)))

	result, err := manager.ExecuteWorkflow(t.Context(), "linear", map[string]any{"task_id": "t1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "linear", result.WorkflowID)
	assert.Regexp(t, `^exec-[0-9a-f]{8}$`, result.ExecutionID)
	assert.Equal(t, 2, result.ActionsExecuted)
	assert.Equal(t, 2, result.ActionsSuccessful)
	assert.Equal(t, models.ExecutionCompleted, result.Metadata["status"])
	assert.Equal(t, "two", result.Metadata["current_step"])
	assert.Equal(t, []string{"one", "two"}, result.Metadata["visited_steps"])

	variables := result.Metadata["variables"].(map[string]any)
	assert.Equal(t, "t1", variables["task_id"])
	assert.Equal(t, map[string]any{"step": "one"}, variables["one"])

	assert.Empty(t, manager.ActiveExecutions())
}

func TestManager_FailureBranch(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("branching",
		models.WorkflowStep{ID: "step1", Type: "ok", OnSuccess: "step2"},
		models.WorkflowStep{ID: "step2", Type: "fail", OnSuccess: "unreachable", OnFailure: "step3"},
		models.WorkflowStep{ID: "step3", Type: "ok"},
	)))

	result, err := manager.ExecuteWorkflow(t.Context(), "branching", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ActionsExecuted)
	assert.Equal(t, 1, result.ActionsFailed)
	assert.Equal(t, []string{"step1", "step2", "step3"}, result.Metadata["visited_steps"])
	assert.Equal(t, "step3", result.Metadata["current_step"])
	assert.Equal(t, models.ExecutionFailed, result.Metadata["status"])
}

func TestManager_HardStopWithoutFailureEdge(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("hard-stop",
		models.WorkflowStep{ID: "step1", Type: "fail", OnSuccess: "step2"},
		models.WorkflowStep{ID: "step2", Type: "ok"},
	)))

	result, err := manager.ExecuteWorkflow(t.Context(), "hard-stop", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Equal(t, []string{"step1"}, result.Metadata["visited_steps"])
	assert.Contains(t, result.Error, "step exploded")
}

func TestManager_MissingStepFails(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("dangling",
		models.WorkflowStep{ID: "step1", Type: "ok", OnSuccess: "ghost"},
	)))

	result, err := manager.ExecuteWorkflow(t.Context(), "dangling", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "step not found")
}

func TestManager_CycleIsBounded(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("loop",
		models.WorkflowStep{ID: "a", Type: "ok", OnSuccess: "b"},
		models.WorkflowStep{ID: "b", Type: "ok", OnSuccess: "a"},
	)))

	result, err := manager.ExecuteWorkflow(t.Context(), "loop", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, maxTransitions, result.ActionsExecuted)
	assert.Contains(t, result.Error, "too many step transitions")
}

func TestManager_EmptyWorkflowCompletes(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.AddWorkflow(enabled("empty")))

	result, err := manager.ExecuteWorkflow(t.Context(), "empty", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ActionsExecuted)
}

func TestManager_UnknownStepTypeIsPassthrough(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.AddWorkflow(enabled("custom",
		models.WorkflowStep{ID: "s", Type: "custom_type", Config: map[string]any{"k": "v"}},
	)))

	result, err := manager.ExecuteWorkflow(t.Context(), "custom", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	variables := result.Metadata["variables"].(map[string]any)
	assert.Equal(t, true, variables["s"].(map[string]any)["passthrough"])
}

func TestManager_UnknownAndDisabled(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.ExecuteWorkflow(t.Context(), "missing", nil)
	require.Error(t, err)
	assert.True(t, IsWorkflowNotFound(err))

	disabled := enabled("off", models.WorkflowStep{ID: "s", Type: "ok"})
	disabled.Enabled = false
	require.NoError(t, manager.AddWorkflow(disabled))

	_, err = manager.ExecuteWorkflow(t.Context(), "off", nil)
	require.Error(t, err)
	assert.True(t, IsWorkflowDisabled(err))

	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "ExecuteWorkflow", wfErr.Op)
}

func TestManager_StoppedYieldsFailedResult(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.AddWorkflow(enabled("wf", models.WorkflowStep{ID: "s", Type: "ok"})))
	require.NoError(t, manager.Stop(t.Context()))

	result, err := manager.ExecuteWorkflow(t.Context(), "wf", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, ErrManagerStopped.Error(), result.Error)
	assert.Nil(t, manager.ProcessEvent(t.Context(), models.AutomationEvent{}))
}

func TestManager_StopCancelsActiveExecutions(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	block := funcFactory{id: "block", fn: func(_ context.Context, input protocol.ActionInput, _ *slog.Logger) (map[string]any, error) {
		close(started)
		<-release

		return map[string]any{}, nil
	}}

	var secondRan bool

	second := funcFactory{id: "second", fn: func(context.Context, protocol.ActionInput, *slog.Logger) (map[string]any, error) {
		secondRan = true

		return nil, nil
	}}

	manager := newTestManager(t, block, second)
	require.NoError(t, manager.AddWorkflow(enabled("long",
		models.WorkflowStep{ID: "first", Type: "block", OnSuccess: "next"},
		models.WorkflowStep{ID: "next", Type: "second"},
	)))

	done := make(chan models.AutomationExecutionResult, 1)

	go func() {
		result, _ := manager.ExecuteWorkflow(context.Background(), "long", nil)
		done <- result
	}()

	<-started
	require.Len(t, manager.ActiveExecutions(), 1)

	require.NoError(t, manager.Stop(t.Context()))
	assert.Empty(t, manager.ActiveExecutions())

	close(release)

	result := <-done
	assert.False(t, result.Success)
	assert.Equal(t, models.ExecutionCancelled, result.Metadata["status"])
	assert.Equal(t, ErrExecutionCancelled.Error(), result.Error)
	assert.Equal(t, []string{"first"}, result.Metadata["visited_steps"])
	assert.False(t, secondRan)

	m := manager.Metrics()
	assert.Equal(t, int64(1), m.FailedExecutions)
}

func TestManager_CancelExecution(t *testing.T) {
	manager := newTestManager(t)

	err := manager.CancelExecution("exec-unknown")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestManager_CRUD(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("a")))
	require.NoError(t, manager.AddWorkflow(enabled("b")))

	renamed := enabled("a")
	renamed.Name = "Renamed"
	require.NoError(t, manager.AddWorkflow(renamed))

	workflows := manager.Workflows()
	require.Len(t, workflows, 2)
	assert.Equal(t, "Renamed", workflows[0].Name)

	err := manager.AddWorkflow(enabled("dup",
		models.WorkflowStep{ID: "s", Type: "ok"},
		models.WorkflowStep{ID: "s", Type: "ok"},
	))
	assert.ErrorIs(t, err, ErrInvalidWorkflow)

	require.NoError(t, manager.RemoveWorkflow("a"))
	assert.True(t, IsWorkflowNotFound(manager.RemoveWorkflow("a")))

	_, err = manager.Workflow("a")
	assert.True(t, IsWorkflowNotFound(err))
}

func TestManager_ProcessEvent(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.AddWorkflow(enabled("on-complete", models.WorkflowStep{ID: "s", Type: "ok"})))

	event := models.NewAutomationEvent(models.EventTaskCompleted, models.SourceTaskManager, nil, "t1")

	assert.Empty(t, manager.ProcessEvent(t.Context(), event), "manual-only by default")

	manager.SetTriggerMatcher(EventTypeMatcher{"on-complete": {models.EventTaskCompleted}})

	results := manager.ProcessEvent(t.Context(), event)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "t1", results[0].Metadata["variables"].(map[string]any)["task_id"])
}

func TestManager_MetricsInsightsOptimize(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.AddWorkflow(enabled("used", models.WorkflowStep{ID: "s", Type: "ok"})))
	require.NoError(t, manager.AddWorkflow(enabled("idle", models.WorkflowStep{ID: "s", Type: "ok"})))
	require.NoError(t, manager.AddWorkflow(enabled("hollow")))

	_, err := manager.ExecuteWorkflow(t.Context(), "used", nil)
	require.NoError(t, err)

	m := manager.Metrics()
	assert.Equal(t, 3, m.TotalWorkflows)
	assert.Equal(t, 3, m.ActiveWorkflows)
	assert.Equal(t, int64(1), m.TotalExecutions)
	assert.Equal(t, int64(1), m.ExecutionsToday)
	assert.Equal(t, []models.ActionUsage{{Type: "ok", Count: 1}}, m.TopActions)

	assert.Empty(t, manager.Insights())

	manager.mu.Lock()
	manager.workflows["used"].Execution.AverageExecutionTime = 45000
	manager.mu.Unlock()

	insights := manager.Insights()
	require.Len(t, insights, 1)
	assert.InDelta(t, 0.75, insights[0].Confidence, 0.0001)
	assert.Equal(t, "long-running-workflow-used", insights[0].ID)

	report := manager.Optimize()
	assert.Equal(t, 2, report.Optimizations)
	assert.Len(t, report.Recommendations, 2)
}

func TestManager_StopDuringStartRefusesExecution(t *testing.T) {
	var ran atomic.Int32

	count := funcFactory{id: "count", fn: func(context.Context, protocol.ActionInput, *slog.Logger) (map[string]any, error) {
		ran.Add(1)

		return nil, nil
	}}

	manager := newTestManager(t, count)
	require.NoError(t, manager.AddWorkflow(enabled("wf",
		models.WorkflowStep{ID: "one", Type: "count", OnSuccess: "two"},
		models.WorkflowStep{ID: "two", Type: "count"},
	)))

	// Holding mu parks ExecuteWorkflow between its running check and registration.
	manager.mu.Lock()

	done := make(chan models.AutomationExecutionResult, 1)

	go func() {
		result, _ := manager.ExecuteWorkflow(context.Background(), "wf", nil)
		done <- result
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, manager.Stop(t.Context()))
	manager.mu.Unlock()

	result := <-done
	assert.False(t, result.Success)
	assert.Equal(t, ErrManagerStopped.Error(), result.Error)
	assert.Equal(t, "wf", result.WorkflowID)
	assert.Equal(t, int32(0), ran.Load())
	assert.Empty(t, manager.ActiveExecutions())
}

func TestManager_ConcurrentExecutionsKeepStatistics(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.AddWorkflow(enabled("wf", models.WorkflowStep{ID: "s", Type: "ok"})))

	const workers = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []models.AutomationExecutionResult
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := manager.ExecuteWorkflow(context.Background(), "wf", nil)
			assert.NoError(t, err)

			_ = manager.ActiveExecutions()
			_ = manager.Metrics()

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}

	wg.Wait()
	require.Len(t, results, workers)

	var totalMs float64
	for _, r := range results {
		assert.True(t, r.Success)
		totalMs += float64(r.Duration) / float64(time.Millisecond)
	}

	stored, err := manager.Workflow("wf")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), stored.Execution.TotalExecutions)

	m := manager.Metrics()
	assert.Equal(t, int64(workers), m.TotalExecutions)
	assert.Equal(t, int64(workers), m.SuccessfulExecutions)
	assert.InDelta(t, totalMs/workers, m.AverageExecutionTime, 1e-6)
	assert.Empty(t, manager.ActiveExecutions())
}
