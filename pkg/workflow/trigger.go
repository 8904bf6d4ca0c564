package workflow

import (
	"slices"

	"github.com/dukex/operion-automation/pkg/models"
)

// TriggerMatcher decides whether an event starts a workflow automatically.
type TriggerMatcher interface {
	Matches(workflow models.Workflow, event models.AutomationEvent) bool
}

// ManualOnly never starts workflows from events; they run only through ExecuteWorkflow.
type ManualOnly struct{}

func (ManualOnly) Matches(models.Workflow, models.AutomationEvent) bool {
	return false
}

// EventTypeMatcher starts a workflow for the event types listed under its id.
type EventTypeMatcher map[string][]models.EventType

func (m EventTypeMatcher) Matches(workflow models.Workflow, event models.AutomationEvent) bool {
	return slices.Contains(m[workflow.ID], event.Type)
}
