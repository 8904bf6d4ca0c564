// Package metrics exports automation counters and durations to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives execution outcomes from the rule engine, workflow manager and event
// processor.
type Recorder interface {
	ObserveEvent(eventType string)
	ObserveRuleExecution(ruleID string, success bool, duration time.Duration)
	ObserveWorkflowExecution(workflowID, status string, duration time.Duration)
	ObserveAction(actionType string, success bool)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveEvent(string)                                    {}
func (Noop) ObserveRuleExecution(string, bool, time.Duration)       {}
func (Noop) ObserveWorkflowExecution(string, string, time.Duration) {}
func (Noop) ObserveAction(string, bool)                             {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	events            *prometheus.CounterVec
	ruleExecutions    *prometheus.CounterVec
	ruleDuration      *prometheus.HistogramVec
	workflowRuns      *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec
	actionInvocations *prometheus.CounterVec
}

// NewProm creates the collectors under namespace and registers them with reg.
// A nil reg uses the default registerer.
func NewProm(namespace string, reg prometheus.Registerer) (*Prom, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prom{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Automation events processed by type",
		}, []string{"type"}),
		ruleExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_executions_total",
			Help:      "Rule executions by rule and status",
		}, []string{"rule", "status"}),
		ruleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_execution_duration_seconds",
			Help:      "Rule execution latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rule"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Workflow executions by workflow and terminal status",
		}, []string{"workflow", "status"}),
		workflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution latency",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"workflow"}),
		actionInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_invocations_total",
			Help:      "Action invocations by type and status",
		}, []string{"type", "status"}),
	}

	for _, c := range []prometheus.Collector{
		p.events, p.ruleExecutions, p.ruleDuration, p.workflowRuns, p.workflowDuration, p.actionInvocations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Prom) ObserveEvent(eventType string) {
	p.events.WithLabelValues(eventType).Inc()
}

func (p *Prom) ObserveRuleExecution(ruleID string, success bool, duration time.Duration) {
	p.ruleExecutions.WithLabelValues(ruleID, status(success)).Inc()
	p.ruleDuration.WithLabelValues(ruleID).Observe(duration.Seconds())
}

func (p *Prom) ObserveWorkflowExecution(workflowID, status string, duration time.Duration) {
	p.workflowRuns.WithLabelValues(workflowID, status).Inc()
	p.workflowDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

func (p *Prom) ObserveAction(actionType string, success bool) {
	p.actionInvocations.WithLabelValues(actionType, status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
