package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/otelhelper"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/registry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

func newExecutionID() string {
	return "exec-" + uuid.NewString()[:8]
}

// ExecuteWorkflow runs the workflow to a terminal status. Unknown and disabled workflows
// are errors; a stopped manager yields a failed result without running anything.
func (m *Manager) ExecuteWorkflow(
	ctx context.Context,
	workflowID string,
	variables map[string]any,
) (models.AutomationExecutionResult, error) {
	executionID := newExecutionID()
	start := m.now()

	if !m.running.Load() {
		result := models.FailedResult(executionID, start, ErrManagerStopped)
		result.WorkflowID = workflowID

		return result, nil
	}

	m.mu.RLock()
	stored, ok := m.workflows[workflowID]

	var workflow models.Workflow
	if ok {
		workflow = *stored
	}

	policy := m.policy
	maxLogEntries := m.maxLogEntries
	m.mu.RUnlock()

	if !ok {
		return models.AutomationExecutionResult{}, newWorkflowError("ExecuteWorkflow", workflowID, ErrWorkflowNotFound)
	}

	if !workflow.Enabled {
		return models.AutomationExecutionResult{}, newWorkflowError("ExecuteWorkflow", workflowID, ErrWorkflowDisabled)
	}

	if variables == nil {
		variables = make(map[string]any)
	} else {
		variables = maps.Clone(variables)
	}

	exec := &execution{ctx: models.WorkflowExecutionContext{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		StartTime:   start,
		Variables:   variables,
		Status:      models.ExecutionRunning,
	}}

	// Stop clears running before it takes activeMu, so a run registered here is
	// either seen by Stop or refused.
	m.activeMu.Lock()
	if !m.running.Load() {
		m.activeMu.Unlock()

		result := models.FailedResult(executionID, start, ErrManagerStopped)
		result.WorkflowID = workflowID

		return result, nil
	}

	m.active[executionID] = exec
	m.activeMu.Unlock()

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	logger := m.logger.With("workflow_id", workflowID, "execution_id", executionID)
	logger.InfoContext(ctx, "Starting workflow execution", "steps", len(workflow.Steps))

	run := &runState{logs: models.NewLogBuffer(maxLogEntries)}
	run.logs.Add(models.LogInfo, "Workflow execution started", map[string]any{"workflow": workflow.Name})

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				run.hardStop = fmt.Errorf("workflow %s panicked: %v", workflowID, rec)
			}
		}()

		m.traverse(ctx, workflow, exec, run, policy, logger)
	}()

	result, status := m.finalize(workflow, exec, run, start)

	if !result.Success {
		otelhelper.SetError(span, errors.New(result.Error))
	}

	m.record(workflowID, result, status)

	logger.InfoContext(ctx, "Workflow execution finished",
		"status", status,
		"success", result.Success,
		"duration", result.Duration,
	)

	return result, nil
}

// runState collects what traverse observes for finalize.
type runState struct {
	logs       *models.LogBuffer
	visited    []string
	executed   int
	successful int
	failed     int
	lastErr    error
	hardStop   error
}

func (m *Manager) traverse(
	ctx context.Context,
	workflow models.Workflow,
	exec *execution,
	run *runState,
	policy registry.Policy,
	logger *slog.Logger,
) {
	if len(workflow.Steps) == 0 {
		return
	}

	currentID := workflow.Steps[0].ID

	for transitions := 0; currentID != ""; transitions++ {
		if exec.status() != models.ExecutionRunning {
			run.logs.Add(models.LogWarn, "Execution cancelled before step", map[string]any{"step_id": currentID})

			return
		}

		if transitions >= maxTransitions {
			run.hardStop = fmt.Errorf("%w: limit %d reached at step %s", ErrTooManyTransitions, maxTransitions, currentID)

			return
		}

		step, ok := workflow.StepByID(currentID)
		if !ok {
			run.hardStop = fmt.Errorf("%w: %s", ErrStepNotFound, currentID)
			run.logs.Add(models.LogError, "Step not found", map[string]any{"step_id": currentID})

			return
		}

		input := m.stepInput(workflow.ID, step, exec)
		run.visited = append(run.visited, step.ID)

		stepLogger := logger.With("step_id", step.ID, "step_type", step.Type)

		output, err := m.runStep(ctx, step, input, policy, stepLogger)

		run.executed++
		m.recorder.ObserveAction(step.Type, err == nil)

		if err == nil {
			run.successful++

			exec.mu.Lock()
			if output == nil {
				output = map[string]any{}
			}
			exec.ctx.Variables[step.ID] = output
			exec.mu.Unlock()

			run.logs.Add(models.LogInfo, "Step completed", map[string]any{"step_id": step.ID})
			currentID = step.OnSuccess

			continue
		}

		run.failed++
		run.lastErr = err

		stepLogger.WarnContext(ctx, "Workflow step failed", "error", err, "on_failure", step.OnFailure)
		run.logs.Add(models.LogError, "Step failed", map[string]any{"step_id": step.ID, "error": err.Error()})

		if step.OnFailure == "" {
			run.hardStop = fmt.Errorf("step %s failed: %w", step.ID, err)

			return
		}

		currentID = step.OnFailure
	}
}

func (m *Manager) stepInput(workflowID string, step models.WorkflowStep, exec *execution) protocol.ActionInput {
	exec.mu.Lock()
	defer exec.mu.Unlock()

	exec.ctx.CurrentStep = step.ID
	taskID, _ := exec.ctx.Variables["task_id"].(string)

	return protocol.ActionInput{
		TaskID:      taskID,
		WorkflowID:  workflowID,
		StepID:      step.ID,
		ExecutionID: exec.ctx.ExecutionID,
		Variables:   maps.Clone(exec.ctx.Variables),
	}
}

func (m *Manager) runStep(
	ctx context.Context,
	step models.WorkflowStep,
	input protocol.ActionInput,
	policy registry.Policy,
	logger *slog.Logger,
) (map[string]any, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.ActionTypeKey, step.Type),
	)

	output, err := m.registry.Invoke(ctx, models.Action{Type: step.Type, Config: step.Config}, input, policy, logger)
	otelhelper.End(span, err)

	return output, err
}

func (m *Manager) finalize(
	workflow models.Workflow,
	exec *execution,
	run *runState,
	start time.Time,
) (models.AutomationExecutionResult, models.ExecutionStatus) {
	status := models.ExecutionCompleted
	errMsg := ""

	switch {
	case run.hardStop != nil:
		status = models.ExecutionFailed
		errMsg = run.hardStop.Error()
	case run.failed > 0:
		status = models.ExecutionFailed
		errMsg = run.lastErr.Error()
	}

	status = exec.finish(status, errMsg)
	if status == models.ExecutionCancelled {
		errMsg = ErrExecutionCancelled.Error()
	}

	m.activeMu.Lock()
	delete(m.active, exec.ctx.ExecutionID)
	m.activeMu.Unlock()

	final := exec.snapshot()
	end := m.now()

	run.logs.Add(models.LogInfo, "Workflow execution finished", map[string]any{"status": string(status)})

	result := models.AutomationExecutionResult{
		Success:           status == models.ExecutionCompleted,
		WorkflowID:        workflow.ID,
		ExecutionID:       final.ExecutionID,
		StartTime:         start,
		EndTime:           end,
		Duration:          end.Sub(start),
		ActionsExecuted:   run.executed,
		ActionsSuccessful: run.successful,
		ActionsFailed:     run.failed,
		Error:             errMsg,
		Logs:              run.logs.Entries(),
		Metadata: map[string]any{
			"status":        status,
			"current_step":  final.CurrentStep,
			"visited_steps": run.visited,
			"variables":     final.Variables,
		},
	}

	if dropped := run.logs.Dropped(); dropped > 0 {
		result.Metadata["logs_dropped"] = dropped
	}

	return result, status
}

// record folds result into the workflow's and the manager's statistics. Cancelled runs
// count as failures.
func (m *Manager) record(workflowID string, result models.AutomationExecutionResult, status models.ExecutionStatus) {
	m.recorder.ObserveWorkflowExecution(workflowID, string(status), result.Duration)

	m.mu.Lock()
	defer m.mu.Unlock()

	if workflow, ok := m.workflows[workflowID]; ok {
		workflow.Execution.Record(result.Duration, result.Success, result.StartTime)
	}

	m.stats.total++
	if result.Success {
		m.stats.success++
	} else {
		m.stats.failure++
	}

	m.stats.avgMs = models.RunningMean(m.stats.avgMs, m.stats.total, result.Duration)

	day := result.StartTime.UTC().Format(time.DateOnly)
	if day != m.stats.todayKey {
		m.stats.todayKey = day
		m.stats.today = 0
	}

	m.stats.today++
}
