package automation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/eventbus"
	"github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/metrics"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/notification"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTaskService struct {
	mock.Mock
}

func (m *mockTaskService) UpdateTask(ctx context.Context, taskID string, changes map[string]any) error {
	return m.Called(ctx, taskID, changes).Error(0)
}

func (m *mockTaskService) DecomposeTask(ctx context.Context, taskID string, options map[string]any) error {
	return m.Called(ctx, taskID, options).Error(0)
}

type mockPriorityService struct {
	mock.Mock
}

func (m *mockPriorityService) ChangePriority(ctx context.Context, taskID, priority, reason string) error {
	return m.Called(ctx, taskID, priority, reason).Error(0)
}

type mockAnalysisRunner struct {
	mock.Mock
}

func (m *mockAnalysisRunner) RunAnalysis(ctx context.Context, analysisType string, params map[string]any) (map[string]any, error) {
	args := m.Called(ctx, analysisType, params)

	out, _ := args.Get(0).(map[string]any)

	return out, args.Error(1)
}

type captureSink struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *captureSink) Deliver(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, n)

	return nil
}

func (s *captureSink) Sent() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Notification(nil), s.sent...)
}

// outcomeFactory builds "outcome" actions that fail when config.fail is true.
type outcomeFactory struct{}

func (outcomeFactory) ID() string { return "outcome" }

func (outcomeFactory) Create(config map[string]any) (protocol.Action, error) {
	fail, _ := config["fail"].(bool)

	return protocol.ActionFunc(func(context.Context, protocol.ActionInput, *slog.Logger) (map[string]any, error) {
		if fail {
			return nil, errors.New("outcome failed")
		}

		return map[string]any{"ok": true}, nil
	}), nil
}

type panickingRecorder struct {
	metrics.Noop
}

func (panickingRecorder) ObserveEvent(string) {
	panic("recorder exploded")
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Retry.MaxRetries = 0
	cfg.Retry.Delay = time.Millisecond
	cfg.DefaultTimeout = time.Second

	return cfg
}

func newTestEngine(t *testing.T, deps Dependencies) *Engine {
	t.Helper()

	engine, err := New(log.Discard(), testConfig(), deps)
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))

	t.Cleanup(func() { _ = engine.Stop(context.Background()) })

	return engine
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxConcurrentExecutions = 0

	_, err := New(log.Discard(), cfg, Dependencies{})

	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestStart_LoadsDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, Dependencies{})

	assert.True(t, engine.Running())
	assert.Len(t, engine.Rules(), 3)
	assert.Len(t, engine.Workflows(), 1)

	require.NoError(t, engine.RemoveRule(DecomposeRuleID))
	require.NoError(t, engine.Stop(ctx))
	assert.False(t, engine.Running())

	require.NoError(t, engine.Start(ctx))
	require.NoError(t, engine.Start(ctx))
	assert.Len(t, engine.Rules(), 2)
}

func TestTaskCreated_DecomposesVeryComplexTasks(t *testing.T) {
	tasks := &mockTaskService{}
	tasks.On("DecomposeTask", mock.Anything, "task-1", map[string]any{"strategy": "auto"}).Return(nil).Once()

	engine := newTestEngine(t, Dependencies{Tasks: tasks})

	engine.TaskCreated(context.Background(), models.Task{ID: "task-1", Title: "Migrate", Complexity: "very_complex"})
	engine.TaskCreated(context.Background(), models.Task{ID: "task-2", Title: "Fix typo", Complexity: "simple"})

	tasks.AssertExpectations(t)

	history := engine.History()
	require.Len(t, history, 1)
	assert.Equal(t, DecomposeRuleID, history[0].RuleID)
	assert.True(t, history[0].Success)
}

func TestTaskUpdated_EscalatesOverdueTasks(t *testing.T) {
	priorities := &mockPriorityService{}
	priorities.On("ChangePriority", mock.Anything, "task-7", "urgent", "Task is overdue").Return(nil).Once()

	sink := &captureSink{}
	engine := newTestEngine(t, Dependencies{Priorities: priorities, NotificationSink: sink})

	engine.TaskUpdated(context.Background(), "task-7", map[string]any{"is_overdue": true})
	engine.TaskUpdated(context.Background(), "task-7", map[string]any{"is_overdue": false})

	priorities.AssertExpectations(t)

	sent := sink.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "task_escalated", sent[0].Type)
	assert.Equal(t, "high", sent[0].Priority)
	assert.Equal(t, "Task task-7 is overdue and was escalated to urgent priority", sent[0].Message)
}

func TestTaskCompleted_RunsCompletionWorkflow(t *testing.T) {
	tasks := &mockTaskService{}
	tasks.On("UpdateTask", mock.Anything, "task-3", map[string]any{"progress": 100}).Return(nil).Once()

	analysis := &mockAnalysisRunner{}
	analysis.On("RunAnalysis", mock.Anything, "learning_cycle", mock.MatchedBy(func(params map[string]any) bool {
		return params["task_id"] == "task-3"
	})).Return(map[string]any{"patterns": 2}, nil).Once()

	sink := &captureSink{}
	engine := newTestEngine(t, Dependencies{Tasks: tasks, Analysis: analysis, NotificationSink: sink})

	engine.TaskCompleted(context.Background(), models.Task{ID: "task-3", Status: "done"})

	tasks.AssertExpectations(t)
	analysis.AssertExpectations(t)

	sent := sink.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Task task-3 completed", sent[0].Message)

	history := engine.History()
	require.Len(t, history, 1)
	assert.Equal(t, CompletionRuleID, history[0].RuleID)
	assert.True(t, history[0].Success)

	wf, err := engine.Workflow(CompletionWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.Execution.SuccessfulExecutions)
}

func TestProcessEvent_Stopped(t *testing.T) {
	engine, err := New(log.Discard(), testConfig(), Dependencies{})
	require.NoError(t, err)

	assert.Nil(t, engine.EmitManualEvent(context.Background(), models.EventTaskCreated, nil, "task-1"))
	assert.Empty(t, engine.History())
}

func TestProcessEvent_PanicYieldsFailedResult(t *testing.T) {
	engine := newTestEngine(t, Dependencies{Recorder: panickingRecorder{}})

	results := engine.EmitManualEvent(context.Background(), "anything", nil, "")

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "recorder exploded")
	assert.Equal(t, "anything", results[0].Metadata["event_type"])
}

func TestExecuteWorkflow_Errors(t *testing.T) {
	engine := newTestEngine(t, Dependencies{})

	_, err := engine.ExecuteWorkflow(context.Background(), "missing", nil)

	require.Error(t, err)
	assert.Empty(t, engine.History())
}

func TestHistory_Bounded(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.HistorySize = 2

	engine, err := New(log.Discard(), cfg, Dependencies{Actions: []protocol.ActionFactory{outcomeFactory{}}})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))

	require.NoError(t, engine.AddWorkflow(models.Workflow{
		ID: "wf", Name: "WF", Enabled: true,
		Steps: []models.WorkflowStep{{ID: "only", Type: "outcome"}},
	}))

	var ids []string

	for i := 0; i < 3; i++ {
		result, err := engine.ExecuteWorkflow(context.Background(), "wf", nil)
		require.NoError(t, err)

		ids = append(ids, result.ExecutionID)
	}

	history := engine.History()
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0].ExecutionID)
	assert.Equal(t, ids[2], history[1].ExecutionID)
}

func TestMetrics_MergesErrorRate(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, Dependencies{Actions: []protocol.ActionFactory{outcomeFactory{}}})

	require.NoError(t, engine.AddRule(models.AutomationRule{
		ID: "ok", Name: "OK", Enabled: true,
		Trigger: models.Trigger{Type: "ping"},
		Actions: []models.Action{{Type: "outcome"}},
	}))
	require.NoError(t, engine.AddRule(models.AutomationRule{
		ID: "broken", Name: "Broken", Enabled: true,
		Trigger: models.Trigger{Type: "boom"},
		Actions: []models.Action{{Type: "outcome", Config: map[string]any{"fail": true}}},
	}))
	require.NoError(t, engine.AddWorkflow(models.Workflow{
		ID: "wf", Name: "WF", Enabled: true,
		Steps: []models.WorkflowStep{{ID: "only", Type: "outcome"}},
	}))

	for i := 0; i < 3; i++ {
		engine.EmitManualEvent(ctx, "ping", nil, "")
	}

	engine.EmitManualEvent(ctx, "boom", nil, "")

	for i := 0; i < 4; i++ {
		_, err := engine.ExecuteWorkflow(ctx, "wf", nil)
		require.NoError(t, err)
	}

	m := engine.Metrics(ctx)

	assert.Equal(t, int64(8), m.TotalExecutions)
	assert.Equal(t, int64(8), m.ExecutionsToday)
	assert.InDelta(t, 1.0/8.0, m.ErrorRate, 1e-9)
	assert.InDelta(t, 7.0/8.0, m.SuccessRate, 1e-9)
	assert.Equal(t, 5, m.TotalRules)
	assert.Equal(t, 2, m.TotalWorkflows)
	require.NotEmpty(t, m.TopActions)
	assert.Equal(t, "outcome", m.TopActions[0].Type)
	assert.Equal(t, int64(8), m.TopActions[0].Count)
	require.Len(t, m.TopEventTypes, 2)
	assert.Equal(t, models.EventTypeCount{Type: "ping", Count: 3}, m.TopEventTypes[0])
	assert.Positive(t, m.Resources.Goroutines)

	insights := engine.Insights(ctx)
	require.NotEmpty(t, insights)
	assert.Equal(t, "high-error-rate", insights[0].ID)

	for i := 1; i < len(insights); i++ {
		assert.GreaterOrEqual(t, insights[i-1].Confidence, insights[i].Confidence)
	}
}

func TestInsights_KeepsRecentLearningInsights(t *testing.T) {
	engine := newTestEngine(t, Dependencies{})

	for i := 0; i < maxLearningInsights+5; i++ {
		engine.LearningInsightGenerated(context.Background(), models.LearningInsight{
			ID:         "learned",
			Title:      "Pattern",
			Confidence: 0.5,
		})
	}

	engine.LearningInsightGenerated(context.Background(), models.LearningInsight{
		ID:              "latest",
		Confidence:      0.99,
		Recommendations: []string{"Batch reviews on Fridays"},
	})

	insights := engine.Insights(context.Background())

	var learning int

	for _, insight := range insights {
		if insight.Type == models.InsightLearning {
			learning++
		}
	}

	assert.Equal(t, maxLearningInsights, learning)
	assert.Equal(t, "latest", insights[0].ID)
	assert.True(t, insights[0].Actionable)
}

func TestOptimizePerformance(t *testing.T) {
	engine := newTestEngine(t, Dependencies{})

	result := engine.OptimizePerformance(context.Background())

	// Three default rules and the default workflow have never executed.
	assert.Equal(t, 4, result.Optimizations)
	assert.Len(t, result.Recommendations, 4)
	assert.InDelta(t, 40.0, result.EstimatedImprovement, 1e-9)

	report, err := engine.Scheduling().Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Optimizations)
}

func TestUpdateConfig(t *testing.T) {
	engine := newTestEngine(t, Dependencies{})

	require.NoError(t, engine.UpdateConfig(config.Config{
		Retry:         config.RetryPolicy{MaxRetries: 5},
		Notifications: config.NotificationConfig{Recipients: []string{"ops@example.com"}},
	}))

	cfg := engine.Config()
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Notifications.Recipients)
	assert.Equal(t, 10, cfg.MaxConcurrentExecutions)

	err := engine.UpdateConfig(config.Config{Retry: config.RetryPolicy{MaxRetries: 50}})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, 5, engine.Config().Retry.MaxRetries)

	err = engine.UpdateConfig(config.Config{Scheduling: config.SchedulingConfig{TimeZone: "Mars/Olympus_Mons"}})
	require.Error(t, err)
	assert.Equal(t, "UTC", engine.Config().Scheduling.TimeZone)
}

func TestNotificationDefaultsPropagate(t *testing.T) {
	sink := &captureSink{}
	engine := newTestEngine(t, Dependencies{NotificationSink: sink})

	require.NoError(t, engine.UpdateConfig(config.Config{
		Notifications: config.NotificationConfig{Recipients: []string{"lead@example.com"}},
	}))

	require.NoError(t, engine.AddRule(models.AutomationRule{
		ID: "notify", Name: "Notify", Enabled: true,
		Trigger: models.Trigger{Type: "ping"},
		Actions: []models.Action{{Type: "send_notification", Config: map[string]any{"message": "pong"}}},
	}))

	engine.EmitManualEvent(context.Background(), "ping", nil, "")

	sent := sink.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"lead@example.com"}, sent[0].Recipients)
}

var _ notification.Sink = (*captureSink)(nil)

func TestUpdateConfig_ResizesBridge(t *testing.T) {
	engine := newTestEngine(t, Dependencies{})
	bridge := eventbus.NewBridge(nil, log.Discard(), engine.Config().MaxConcurrentExecutions)

	engine.OnConfigUpdate(func(cfg config.Config) {
		bridge.SetMaxConcurrent(cfg.MaxConcurrentExecutions)
	})

	require.NoError(t, engine.UpdateConfig(config.Config{MaxConcurrentExecutions: 3}))
	assert.Equal(t, 3, bridge.MaxConcurrent())

	err := engine.UpdateConfig(config.Config{MaxConcurrentExecutions: 7, Retry: config.RetryPolicy{MaxRetries: 50}})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, 3, bridge.MaxConcurrent())
}
