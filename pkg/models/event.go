// Package models defines the core domain models for event-driven task automation.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the trigger category of an AutomationEvent.
type EventType = string

const (
	EventTaskCreated     EventType = "task_created"
	EventTaskUpdated     EventType = "task_updated"
	EventTaskCompleted   EventType = "task_completed"
	EventLearningInsight EventType = "learning_insight"
	EventPriorityChanged EventType = "priority_changed"
)

// Event sources attached to normalized events.
const (
	SourceTaskManager     = "task_manager"
	SourceLearningEngine  = "learning_engine"
	SourcePriorityManager = "priority_manager"
	SourceManual          = "manual"
)

// AutomationEvent is an immutable fact observed by the automation engine.
type AutomationEvent struct {
	ID        string         `json:"id"                yaml:"id"`
	Type      EventType      `json:"type"              yaml:"type"`
	Timestamp time.Time      `json:"timestamp"         yaml:"timestamp"`
	Source    string         `json:"source"            yaml:"source"`
	Data      map[string]any `json:"data,omitempty"    yaml:"data,omitempty"`
	TaskID    string         `json:"task_id,omitempty" yaml:"task_id,omitempty"`
}

// NewAutomationEvent builds an event with a generated id and the current UTC timestamp.
func NewAutomationEvent(eventType EventType, source string, data map[string]any, taskID string) AutomationEvent {
	if data == nil {
		data = make(map[string]any)
	}

	return AutomationEvent{
		ID:        "evt-" + uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      data,
		TaskID:    taskID,
	}
}
