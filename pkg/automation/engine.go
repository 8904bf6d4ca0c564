// Package automation is the engine façade: it owns the rule engine, workflow manager,
// event processor, notification and scheduling services and exposes them as one unit.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/operion-automation/pkg/actions/analysis"
	logaction "github.com/dukex/operion-automation/pkg/actions/log"
	"github.com/dukex/operion-automation/pkg/actions/notify"
	"github.com/dukex/operion-automation/pkg/actions/priority"
	"github.com/dukex/operion-automation/pkg/actions/runworkflow"
	"github.com/dukex/operion-automation/pkg/actions/task"
	"github.com/dukex/operion-automation/pkg/actions/webhook"
	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/events"
	"github.com/dukex/operion-automation/pkg/metrics"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/notification"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/registry"
	"github.com/dukex/operion-automation/pkg/rules"
	"github.com/dukex/operion-automation/pkg/scheduling"
	"github.com/dukex/operion-automation/pkg/workflow"
	"github.com/google/uuid"
)

// maxLearningInsights bounds the external learning insights kept for Insights.
const maxLearningInsights = 50

// Dependencies are the external collaborators actions delegate to. Nil services
// leave their action type unregistered, so it falls through to passthrough.
type Dependencies struct {
	Tasks            protocol.TaskService
	Priorities       protocol.PriorityService
	Analysis         protocol.AnalysisRunner
	NotificationSink notification.Sink
	Recorder         metrics.Recorder
	HTTPClient       *http.Client
	// Actions are registered last and override built-in types.
	Actions []protocol.ActionFactory
}

type Engine struct {
	logger   *slog.Logger
	registry *registry.Registry
	recorder metrics.Recorder

	rules         *rules.Engine
	workflows     *workflow.Manager
	events        *events.Processor
	notifications *notification.Service
	scheduling    *scheduling.Service

	running        atomic.Bool
	lifecycleMu    sync.Mutex
	defaultsLoaded bool

	cfgMu    sync.RWMutex
	cfg      config.Config
	cfgHooks []func(config.Config)

	insightsMu sync.Mutex
	learning   []models.Insight

	historyMu sync.Mutex
	history   []models.AutomationExecutionResult
}

func New(logger *slog.Logger, cfg config.Config, deps Dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	sched, err := scheduling.NewService(logger, cfg.Scheduling)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(logger)

	e := &Engine{
		logger:        logger.With("module", "automation_engine"),
		registry:      reg,
		recorder:      recorder,
		rules:         rules.NewEngine(logger, reg, recorder, cfg),
		workflows:     workflow.NewManager(logger, reg, recorder, cfg),
		events:        events.NewProcessor(logger, recorder),
		notifications: notification.NewService(logger, deps.NotificationSink, cfg.Notifications),
		scheduling:    sched,
		cfg:           cfg,
	}

	e.registerActions(deps, cfg)
	e.scheduling.SetOptimizer(func(ctx context.Context) (models.OptimizationReport, error) {
		result := e.OptimizePerformance(ctx)

		return models.OptimizationReport{
			Optimizations:   result.Optimizations,
			Recommendations: result.Recommendations,
		}, nil
	})

	return e, nil
}

func (e *Engine) registerActions(deps Dependencies, cfg config.Config) {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.DefaultTimeout}
	}

	e.registry.RegisterAction(logaction.NewActionFactory())
	e.registry.RegisterAction(webhook.NewActionFactory(client))
	e.registry.RegisterAction(notify.NewActionFactory(e.notifications))
	e.registry.RegisterAction(runworkflow.NewActionFactory(e.workflows))

	if deps.Tasks != nil {
		e.registry.RegisterAction(task.NewActionFactory(deps.Tasks))
	}

	if deps.Priorities != nil {
		e.registry.RegisterAction(priority.NewActionFactory(deps.Priorities))
	}

	if deps.Analysis != nil {
		e.registry.RegisterAction(analysis.NewActionFactory(deps.Analysis))
	}

	for _, factory := range deps.Actions {
		e.registry.RegisterAction(factory)
	}
}

// Registry exposes the action registry so callers can add action types.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) Scheduling() *scheduling.Service {
	return e.scheduling
}

type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func (e *Engine) components() []lifecycle {
	return []lifecycle{e.rules, e.workflows, e.events, e.notifications, e.scheduling}
}

// Start starts every component in order and installs the default rules and
// workflows the first time it runs.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.running.Load() {
		return nil
	}

	for _, c := range e.components() {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start automation engine: %w", err)
		}
	}

	if !e.defaultsLoaded {
		if err := e.loadDefaults(); err != nil {
			return err
		}

		e.defaultsLoaded = true
	}

	e.running.Store(true)
	e.logger.InfoContext(ctx, "Automation engine started",
		"rules", len(e.rules.Rules()),
		"workflows", len(e.workflows.Workflows()),
		"actions", e.registry.Types(),
	)

	return nil
}

func (e *Engine) loadDefaults() error {
	for _, wf := range DefaultWorkflows() {
		if err := e.workflows.AddWorkflow(wf); err != nil {
			return fmt.Errorf("failed to load default workflow %s: %w", wf.ID, err)
		}
	}

	for _, rule := range DefaultRules() {
		if err := e.rules.AddRule(rule); err != nil {
			return fmt.Errorf("failed to load default rule %s: %w", rule.ID, err)
		}
	}

	return nil
}

// Stop stops every component in the same order Start used. Active workflow
// executions are cancelled by the workflow manager.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.running.Load() {
		return nil
	}

	e.running.Store(false)

	var firstErr error

	for _, c := range e.components() {
		if err := c.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop automation engine: %w", err)
		}
	}

	e.logger.InfoContext(ctx, "Automation engine stopped")

	return firstErr
}

func (e *Engine) Running() bool {
	return e.running.Load()
}

// ProcessEvent runs the event through the event processor, the rule engine and the
// workflow manager and returns the rule results followed by the workflow results.
func (e *Engine) ProcessEvent(ctx context.Context, event models.AutomationEvent) (results []models.AutomationExecutionResult) {
	if !e.running.Load() {
		return nil
	}

	start := time.Now().UTC()
	logger := e.logger.With("event_id", event.ID, "event_type", event.Type)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Event processing panicked", "panic", r)

			failed := models.FailedResult("automation-exec-"+uuid.NewString()[:8], start, fmt.Errorf("event processing panicked: %v", r))
			failed.Metadata["event_id"] = event.ID
			failed.Metadata["event_type"] = event.Type
			results = []models.AutomationExecutionResult{failed}
		}

		e.remember(results)
	}()

	e.events.ProcessEvent(ctx, event)

	results = append(results, e.rules.ProcessEvent(ctx, event)...)
	results = append(results, e.workflows.ProcessEvent(ctx, event)...)

	logger.DebugContext(ctx, "Event processed", "results", len(results))

	return results
}

// EmitManualEvent processes a user-initiated event.
func (e *Engine) EmitManualEvent(
	ctx context.Context,
	eventType models.EventType,
	data map[string]any,
	taskID string,
) []models.AutomationExecutionResult {
	return e.ProcessEvent(ctx, models.NewAutomationEvent(eventType, models.SourceManual, data, taskID))
}

func (e *Engine) remember(results []models.AutomationExecutionResult) {
	if len(results) == 0 {
		return
	}

	e.cfgMu.RLock()
	size := e.cfg.Logging.HistorySize
	e.cfgMu.RUnlock()

	if size <= 0 {
		return
	}

	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	e.history = append(e.history, results...)
	if overflow := len(e.history) - size; overflow > 0 {
		e.history = append([]models.AutomationExecutionResult(nil), e.history[overflow:]...)
	}
}

// History returns the most recent execution results, oldest first.
func (e *Engine) History() []models.AutomationExecutionResult {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	return append([]models.AutomationExecutionResult(nil), e.history...)
}

func (e *Engine) AddRule(rule models.AutomationRule) error {
	return e.rules.AddRule(rule)
}

func (e *Engine) RemoveRule(ruleID string) error {
	return e.rules.RemoveRule(ruleID)
}

func (e *Engine) Rule(ruleID string) (models.AutomationRule, error) {
	return e.rules.Rule(ruleID)
}

func (e *Engine) Rules() []models.AutomationRule {
	return e.rules.Rules()
}

func (e *Engine) AddWorkflow(wf models.Workflow) error {
	return e.workflows.AddWorkflow(wf)
}

func (e *Engine) RemoveWorkflow(workflowID string) error {
	return e.workflows.RemoveWorkflow(workflowID)
}

func (e *Engine) Workflow(workflowID string) (models.Workflow, error) {
	return e.workflows.Workflow(workflowID)
}

func (e *Engine) Workflows() []models.Workflow {
	return e.workflows.Workflows()
}

func (e *Engine) ActiveExecutions() []models.WorkflowExecutionContext {
	return e.workflows.ActiveExecutions()
}

func (e *Engine) CancelExecution(executionID string) error {
	return e.workflows.CancelExecution(executionID)
}

// ExecuteWorkflow starts a workflow explicitly and keeps its result in History.
func (e *Engine) ExecuteWorkflow(
	ctx context.Context,
	workflowID string,
	variables map[string]any,
) (models.AutomationExecutionResult, error) {
	result, err := e.workflows.ExecuteWorkflow(ctx, workflowID, variables)
	if err != nil {
		return result, err
	}

	e.remember([]models.AutomationExecutionResult{result})

	return result, nil
}

func (e *Engine) Config() config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()

	return e.cfg
}

// OnConfigUpdate registers fn to receive every configuration UpdateConfig applies.
// Hooks run with the configuration lock held and must not call back into Config.
func (e *Engine) OnConfigUpdate(fn func(config.Config)) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	e.cfgHooks = append(e.cfgHooks, fn)
}

// UpdateConfig merges partial over the current configuration and propagates the
// result. An invalid merge leaves every component unchanged.
func (e *Engine) UpdateConfig(partial config.Config) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	merged, err := config.Merge(e.cfg, partial)
	if err != nil {
		return err
	}

	if err := e.scheduling.UpdateConfig(merged.Scheduling); err != nil {
		return err
	}

	e.rules.UpdateConfig(merged)
	e.workflows.UpdateConfig(merged)
	e.notifications.UpdateConfig(merged.Notifications)
	e.cfg = merged

	for _, hook := range e.cfgHooks {
		hook(merged)
	}

	e.logger.Info("Configuration updated",
		"max_concurrent_executions", merged.MaxConcurrentExecutions,
		"default_timeout", merged.DefaultTimeout,
		"max_retries", merged.Retry.MaxRetries,
	)

	return nil
}
