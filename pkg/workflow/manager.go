// Package workflow implements the workflow manager: storage and sequential execution of
// multi-step workflows with success and failure edges.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/metrics"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/otelhelper"
	"github.com/dukex/operion-automation/pkg/registry"
	"go.opentelemetry.io/otel/trace"
)

// maxTransitions bounds the steps visited by one run so cyclic graphs terminate.
const maxTransitions = 1000

type Manager struct {
	logger   *slog.Logger
	registry *registry.Registry
	recorder metrics.Recorder
	tracer   trace.Tracer
	now      func() time.Time

	running atomic.Bool

	mu            sync.RWMutex
	workflows     map[string]*models.Workflow
	order         []string
	matcher       TriggerMatcher
	policy        registry.Policy
	thresholds    config.Thresholds
	maxLogEntries int
	stats         stats

	activeMu sync.Mutex
	active   map[string]*execution
}

// stats are the manager-wide execution counters, guarded by Manager.mu.
type stats struct {
	total    int64
	success  int64
	failure  int64
	avgMs    float64
	today    int64
	todayKey string
}

// execution is the mutable state of one in-flight run.
type execution struct {
	mu  sync.Mutex
	ctx models.WorkflowExecutionContext
}

func (e *execution) status() models.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ctx.Status
}

// cancel moves a running execution to cancelled and reports whether it did.
func (e *execution) cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Status != models.ExecutionRunning {
		return false
	}

	e.ctx.Status = models.ExecutionCancelled
	e.ctx.Error = ErrExecutionCancelled.Error()

	return true
}

// finish sets the terminal status unless the execution was already cancelled and returns
// the status that stuck.
func (e *execution) finish(status models.ExecutionStatus, errMsg string) models.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Status == models.ExecutionRunning {
		e.ctx.Status = status
		e.ctx.Error = errMsg
	}

	return e.ctx.Status
}

func (e *execution) snapshot() models.WorkflowExecutionContext {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.ctx
	out.Variables = maps.Clone(e.ctx.Variables)

	return out
}

func NewManager(logger *slog.Logger, reg *registry.Registry, recorder metrics.Recorder, cfg config.Config) *Manager {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Manager{
		logger:        logger.With("module", "workflow_manager"),
		registry:      reg,
		recorder:      recorder,
		tracer:        otelhelper.Tracer(),
		now:           func() time.Time { return time.Now().UTC() },
		workflows:     make(map[string]*models.Workflow),
		matcher:       ManualOnly{},
		policy:        registry.PolicyFromConfig(cfg),
		thresholds:    cfg.Thresholds,
		maxLogEntries: cfg.Logging.MaxLogEntries,
		active:        make(map[string]*execution),
	}
}

// SetTriggerMatcher replaces the matcher ProcessEvent uses to start workflows from events.
func (m *Manager) SetTriggerMatcher(matcher TriggerMatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if matcher == nil {
		matcher = ManualOnly{}
	}

	m.matcher = matcher
}

func (m *Manager) Start(ctx context.Context) error {
	if m.running.Swap(true) {
		return nil
	}

	m.logger.InfoContext(ctx, "Workflow manager started")

	return nil
}

// Stop marks every active execution cancelled and forgets it. Steps already running
// finish, but no further transition happens.
func (m *Manager) Stop(ctx context.Context) error {
	m.running.Store(false)

	m.activeMu.Lock()
	cancelled := 0

	for id, exec := range m.active {
		if exec.cancel() {
			cancelled++
		}

		delete(m.active, id)
	}
	m.activeMu.Unlock()

	m.logger.InfoContext(ctx, "Workflow manager stopped", "cancelled_executions", cancelled)

	return nil
}

func (m *Manager) Running() bool {
	return m.running.Load()
}

// UpdateConfig applies the invocation policy, thresholds and log limits of cfg.
func (m *Manager) UpdateConfig(cfg config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.policy = registry.PolicyFromConfig(cfg)
	m.thresholds = cfg.Thresholds
	m.maxLogEntries = cfg.Logging.MaxLogEntries
}

// AddWorkflow inserts workflow or replaces the one with the same id, keeping its
// position, creation time and statistics.
func (m *Manager) AddWorkflow(workflow models.Workflow) error {
	if workflow.ID == "" {
		return newWorkflowError("AddWorkflow", workflow.ID, fmt.Errorf("%w: id is required", ErrInvalidWorkflow))
	}

	seen := make(map[string]bool, len(workflow.Steps))
	for _, step := range workflow.Steps {
		if seen[step.ID] {
			return newWorkflowError("AddWorkflow", workflow.ID, fmt.Errorf("%w: duplicate step id %s", ErrInvalidWorkflow, step.ID))
		}

		seen[step.ID] = true
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.workflows[workflow.ID]; ok {
		workflow.Metadata.CreatedAt = existing.Metadata.CreatedAt
		workflow.Execution = existing.Execution
	} else {
		if workflow.Metadata.CreatedAt.IsZero() {
			workflow.Metadata.CreatedAt = now
		}

		m.order = append(m.order, workflow.ID)
	}

	workflow.Metadata.UpdatedAt = now
	m.workflows[workflow.ID] = &workflow

	m.logger.Debug("Workflow registered", "workflow_id", workflow.ID, "steps", len(workflow.Steps))

	return nil
}

func (m *Manager) RemoveWorkflow(workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[workflowID]; !ok {
		return newWorkflowError("RemoveWorkflow", workflowID, ErrWorkflowNotFound)
	}

	delete(m.workflows, workflowID)

	for i, id := range m.order {
		if id == workflowID {
			m.order = append(m.order[:i], m.order[i+1:]...)

			break
		}
	}

	return nil
}

func (m *Manager) Workflow(workflowID string) (models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workflow, ok := m.workflows[workflowID]
	if !ok {
		return models.Workflow{}, newWorkflowError("Workflow", workflowID, ErrWorkflowNotFound)
	}

	return *workflow, nil
}

// Workflows returns copies of every workflow in insertion order.
func (m *Manager) Workflows() []models.Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Workflow, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.workflows[id])
	}

	return out
}

// ActiveExecutions returns snapshots of the executions currently running.
func (m *Manager) ActiveExecutions() []models.WorkflowExecutionContext {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	out := make([]models.WorkflowExecutionContext, 0, len(m.active))
	for _, exec := range m.active {
		out = append(out, exec.snapshot())
	}

	return out
}

// CancelExecution cancels one active execution. Its current step finishes.
func (m *Manager) CancelExecution(executionID string) error {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	exec, ok := m.active[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	exec.cancel()
	delete(m.active, executionID)

	return nil
}

// ProcessEvent starts every enabled workflow the trigger matcher selects for event. With
// the default matcher it never starts anything.
func (m *Manager) ProcessEvent(ctx context.Context, event models.AutomationEvent) []models.AutomationExecutionResult {
	if !m.running.Load() {
		return nil
	}

	m.mu.RLock()
	matcher := m.matcher

	var selected []string

	for _, id := range m.order {
		workflow := m.workflows[id]
		if workflow.Enabled && matcher.Matches(*workflow, event) {
			selected = append(selected, id)
		}
	}
	m.mu.RUnlock()

	var results []models.AutomationExecutionResult

	for _, id := range selected {
		variables := map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
			"event_data": event.Data,
		}
		if event.TaskID != "" {
			variables["task_id"] = event.TaskID
		}

		result, err := m.ExecuteWorkflow(ctx, id, variables)
		if err != nil {
			m.logger.WarnContext(ctx, "Triggered workflow could not run", "workflow_id", id, "error", err)

			continue
		}

		results = append(results, result)
	}

	return results
}
