// Package rules implements the rule engine: event-triggered, condition-gated rules that
// dispatch an ordered list of actions.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/metrics"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/otelhelper"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/registry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Engine struct {
	logger   *slog.Logger
	registry *registry.Registry
	recorder metrics.Recorder
	tracer   trace.Tracer
	now      func() time.Time
	evaluate func([]models.Condition, models.AutomationEvent, *slog.Logger) bool

	running atomic.Bool

	mu            sync.RWMutex
	rules         map[string]*models.AutomationRule
	order         []string
	policy        registry.Policy
	thresholds    config.Thresholds
	maxLogEntries int
	stats         stats
}

// stats are the engine-wide execution counters, guarded by Engine.mu.
type stats struct {
	total    int64
	success  int64
	failure  int64
	avgMs    float64
	today    int64
	todayKey string
}

func NewEngine(logger *slog.Logger, reg *registry.Registry, recorder metrics.Recorder, cfg config.Config) *Engine {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Engine{
		logger:        logger.With("module", "rule_engine"),
		registry:      reg,
		recorder:      recorder,
		tracer:        otelhelper.Tracer(),
		now:           func() time.Time { return time.Now().UTC() },
		evaluate:      evaluateConditions,
		rules:         make(map[string]*models.AutomationRule),
		policy:        registry.PolicyFromConfig(cfg),
		thresholds:    cfg.Thresholds,
		maxLogEntries: cfg.Logging.MaxLogEntries,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	if e.running.Swap(true) {
		return nil
	}

	e.logger.InfoContext(ctx, "Rule engine started", "rules", e.count())

	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	if !e.running.Swap(false) {
		return nil
	}

	e.logger.InfoContext(ctx, "Rule engine stopped")

	return nil
}

func (e *Engine) Running() bool {
	return e.running.Load()
}

// UpdateConfig applies the invocation policy, thresholds and log limits of cfg.
func (e *Engine) UpdateConfig(cfg config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policy = registry.PolicyFromConfig(cfg)
	e.thresholds = cfg.Thresholds
	e.maxLogEntries = cfg.Logging.MaxLogEntries
}

// AddRule inserts rule or replaces the rule with the same id. A replaced rule keeps its
// position, creation time and execution statistics.
func (e *Engine) AddRule(rule models.AutomationRule) error {
	if rule.ID == "" || rule.Trigger.Type == "" {
		return newRuleError("AddRule", rule.ID, fmt.Errorf("%w: id and trigger type are required", ErrInvalidRule))
	}

	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.rules[rule.ID]; ok {
		rule.Metadata.CreatedAt = existing.Metadata.CreatedAt
		rule.Execution = existing.Execution
	} else {
		if rule.Metadata.CreatedAt.IsZero() {
			rule.Metadata.CreatedAt = now
		}

		e.order = append(e.order, rule.ID)
	}

	rule.Metadata.UpdatedAt = now
	e.rules[rule.ID] = &rule

	e.logger.Debug("Rule registered", "rule_id", rule.ID, "trigger", rule.Trigger.Type)

	return nil
}

func (e *Engine) RemoveRule(ruleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[ruleID]; !ok {
		return newRuleError("RemoveRule", ruleID, ErrRuleNotFound)
	}

	delete(e.rules, ruleID)

	for i, id := range e.order {
		if id == ruleID {
			e.order = append(e.order[:i], e.order[i+1:]...)

			break
		}
	}

	return nil
}

func (e *Engine) Rule(ruleID string) (models.AutomationRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rule, ok := e.rules[ruleID]
	if !ok {
		return models.AutomationRule{}, newRuleError("Rule", ruleID, ErrRuleNotFound)
	}

	return *rule, nil
}

// Rules returns copies of every rule in insertion order.
func (e *Engine) Rules() []models.AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.AutomationRule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.rules[id])
	}

	return out
}

func (e *Engine) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.rules)
}

// ProcessEvent runs every enabled rule matching event, highest priority first, and
// returns one result per executed rule. It returns nil while the engine is stopped.
func (e *Engine) ProcessEvent(ctx context.Context, event models.AutomationEvent) []models.AutomationExecutionResult {
	if !e.running.Load() {
		return nil
	}

	logger := e.logger.With("event_id", event.ID, "event_type", event.Type)

	candidates := e.candidates(event.Type)

	type selection struct {
		rule   models.AutomationRule
		failed *models.AutomationExecutionResult
	}

	var selected []selection

	for _, rule := range candidates {
		ok, err := e.matches(rule, event, logger)
		if err != nil {
			result := models.FailedResult("rule-exec-"+uuid.NewString()[:8], e.now(), err)
			result.RuleID = rule.ID
			selected = append(selected, selection{rule: rule, failed: &result})

			continue
		}

		if ok {
			selected = append(selected, selection{rule: rule})
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].rule.Priority > selected[j].rule.Priority
	})

	var results []models.AutomationExecutionResult

	for _, s := range selected {
		var result models.AutomationExecutionResult
		if s.failed != nil {
			result = *s.failed
		} else {
			result = e.executeRule(ctx, s.rule, event, logger)
		}

		e.record(s.rule.ID, result)
		results = append(results, result)
	}

	if len(results) > 0 {
		logger.InfoContext(ctx, "Event processed by rule engine", "rules_executed", len(results))
	}

	return results
}

func (e *Engine) candidates(eventType models.EventType) []models.AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []models.AutomationRule

	for _, id := range e.order {
		rule := e.rules[id]
		if rule.Enabled && rule.Trigger.Type == eventType {
			out = append(out, *rule)
		}
	}

	return out
}

// matches reports whether rule applies to event. A panic while evaluating becomes an error.
func (e *Engine) matches(rule models.AutomationRule, event models.AutomationEvent, logger *slog.Logger) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Rule evaluation panicked", "rule_id", rule.ID, "panic", rec)

			ok, err = false, fmt.Errorf("rule %s evaluation panicked: %v", rule.ID, rec)
		}
	}()

	if !matchTriggerConfig(rule.Trigger, event) {
		return false, nil
	}

	return e.evaluate(rule.Conditions, event, logger.With("rule_id", rule.ID)), nil
}

func (e *Engine) executeRule(
	ctx context.Context,
	rule models.AutomationRule,
	event models.AutomationEvent,
	logger *slog.Logger,
) (result models.AutomationExecutionResult) {
	executionID := "rule-exec-" + uuid.NewString()[:8]
	start := e.now()

	e.mu.RLock()
	policy := e.policy
	maxLogEntries := e.maxLogEntries
	e.mu.RUnlock()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "rules.execute",
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.RuleNameKey, rule.Name),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	logger = logger.With("rule_id", rule.ID, "execution_id", executionID)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("rule %s panicked: %v", rule.ID, rec)
			logger.ErrorContext(ctx, "Rule execution failed", "error", err)
			otelhelper.SetError(span, err)

			result = models.FailedResult(executionID, start, err)
			result.RuleID = rule.ID
		}
	}()

	logs := models.NewLogBuffer(maxLogEntries)
	logs.Add(models.LogInfo, "Rule triggered", map[string]any{"rule": rule.Name, "event_id": event.ID})

	result = models.AutomationExecutionResult{
		RuleID:      rule.ID,
		ExecutionID: executionID,
		StartTime:   start,
	}

	var lastErr error

	for i, action := range rule.Actions {
		_, err := e.registry.Invoke(ctx, action, actionInput(rule, event, executionID), policy, logger)

		result.ActionsExecuted++
		e.recorder.ObserveAction(action.Type, err == nil)

		if err != nil {
			result.ActionsFailed++
			lastErr = err

			logger.WarnContext(ctx, "Rule action failed", "action_index", i, "action_type", action.Type, "error", err)
			logs.Add(models.LogError, "Action failed", map[string]any{
				"action_index": i,
				"action_type":  action.Type,
				"error":        err.Error(),
			})

			continue
		}

		result.ActionsSuccessful++
		logs.Add(models.LogInfo, "Action completed", map[string]any{"action_index": i, "action_type": action.Type})
	}

	result.Success = result.ActionsFailed == 0
	if lastErr != nil {
		result.Error = lastErr.Error()
		otelhelper.SetError(span, lastErr)
	}

	result.EndTime = e.now()
	result.Duration = result.EndTime.Sub(start)
	result.Logs = logs.Entries()
	result.Metadata = map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"rule_name":  rule.Name,
		"priority":   rule.Priority,
	}

	if dropped := logs.Dropped(); dropped > 0 {
		result.Metadata["logs_dropped"] = dropped
	}

	return result
}

// actionInput gives each action its own copy of the event data so one action cannot
// change what later actions see.
func actionInput(rule models.AutomationRule, event models.AutomationEvent, executionID string) protocol.ActionInput {
	event.Data = maps.Clone(event.Data)

	return protocol.ActionInput{
		Event:       &event,
		TaskID:      event.TaskID,
		RuleID:      rule.ID,
		ExecutionID: executionID,
		Variables:   maps.Clone(event.Data),
	}
}

// record folds result into the rule's and the engine's statistics.
func (e *Engine) record(ruleID string, result models.AutomationExecutionResult) {
	e.recorder.ObserveRuleExecution(ruleID, result.Success, result.Duration)

	e.mu.Lock()
	defer e.mu.Unlock()

	if rule, ok := e.rules[ruleID]; ok {
		rule.Execution.Record(result.Duration, result.Success, result.StartTime)
	}

	e.stats.total++
	if result.Success {
		e.stats.success++
	} else {
		e.stats.failure++
	}

	e.stats.avgMs = models.RunningMean(e.stats.avgMs, e.stats.total, result.Duration)

	day := result.StartTime.UTC().Format(time.DateOnly)
	if day != e.stats.todayKey {
		e.stats.todayKey = day
		e.stats.today = 0
	}

	e.stats.today++
}

func matchTriggerConfig(trigger models.Trigger, event models.AutomationEvent) bool {
	if source, ok := trigger.Config["source"].(string); ok && source != "" && source != event.Source {
		return false
	}

	if taskID, ok := trigger.Config["task_id"].(string); ok && taskID != "" && taskID != event.TaskID {
		return false
	}

	return true
}
