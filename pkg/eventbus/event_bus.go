// Package eventbus carries domain notifications between the task subsystems and the automation engine.
package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/operion-automation/pkg/models"
)

const Topic = "operion.automation.notifications"

const (
	KeyMetadataKey  = "key"
	KindMetadataKey = "kind"
)

// Kind names the Subscriber method a notification is routed to.
type Kind string

const (
	KindTaskCreated     Kind = "task_created"
	KindTaskUpdated     Kind = "task_updated"
	KindTaskCompleted   Kind = "task_completed"
	KindLearningInsight Kind = "learning_insight"
	KindPriorityChanged Kind = "priority_changed"
)

var (
	ErrUnknownKind     = errors.New("unknown notification kind")
	ErrInvalidEnvelope = errors.New("invalid notification envelope")
)

// Notification is the envelope published on Topic. Payload holds the kind-specific body.
type Notification struct {
	Kind    Kind            `json:"kind"`
	TaskID  string          `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type taskUpdate struct {
	Changes map[string]any `json:"changes"`
}

func newNotification(kind Kind, taskID string, body any) (Notification, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	return Notification{Kind: kind, TaskID: taskID, Payload: payload}, nil
}

func TaskCreated(task models.Task) (Notification, error) {
	return newNotification(KindTaskCreated, task.ID, task)
}

func TaskUpdated(taskID string, changes map[string]any) (Notification, error) {
	return newNotification(KindTaskUpdated, taskID, taskUpdate{Changes: changes})
}

func TaskCompleted(task models.Task) (Notification, error) {
	return newNotification(KindTaskCompleted, task.ID, task)
}

func LearningInsightGenerated(insight models.LearningInsight) (Notification, error) {
	return newNotification(KindLearningInsight, "", insight)
}

func PriorityChanged(taskID string, change models.PriorityChange) (Notification, error) {
	return newNotification(KindPriorityChanged, taskID, change)
}

// Key is the partition key: the task id when present, otherwise the kind.
func (n Notification) Key() string {
	if n.TaskID != "" {
		return n.TaskID
	}

	return string(n.Kind)
}

func (n Notification) Validate() error {
	if n.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidEnvelope)
	}

	if len(n.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidEnvelope)
	}

	switch n.Kind {
	case KindTaskCreated, KindTaskCompleted, KindLearningInsight:
	case KindTaskUpdated, KindPriorityChanged:
		if n.TaskID == "" {
			return fmt.Errorf("%w: task_id is required for %s", ErrInvalidEnvelope, n.Kind)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, n.Kind)
	}

	return nil
}
