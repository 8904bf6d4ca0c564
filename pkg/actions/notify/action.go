// Package notify implements the send_notification action.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

type ActionFactory struct {
	notifier protocol.Notifier
}

func NewActionFactory(notifier protocol.Notifier) *ActionFactory {
	return &ActionFactory{notifier: notifier}
}

func (*ActionFactory) ID() string {
	return "send_notification"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	message, err := actions.RequiredString(f.ID(), config, "message")
	if err != nil {
		return nil, err
	}

	return &Action{
		notifier:         f.notifier,
		notificationType: actions.String(config, "type", "automation"),
		message:          message,
		recipients:       actions.Strings(config, "recipients"),
		priority:         actions.String(config, "priority", ""),
	}, nil
}

// Action renders its message against the input and hands it to the notifier.
// Empty recipients and priority are filled in by the notification service defaults.
type Action struct {
	notifier         protocol.Notifier
	notificationType string
	message          string
	recipients       []string
	priority         string
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	data := input.TemplateData()

	message, err := template.RenderString(a.message, data)
	if err != nil {
		return nil, err
	}

	notification := models.Notification{
		Type:       a.notificationType,
		Recipients: a.recipients,
		Message:    message,
		Priority:   a.priority,
		Data: map[string]any{
			"task_id":      data["task_id"],
			"rule_id":      input.RuleID,
			"workflow_id":  input.WorkflowID,
			"execution_id": input.ExecutionID,
		},
	}

	if err := a.notifier.Send(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}

	logger.DebugContext(ctx, "Notification sent", "type", a.notificationType)

	return map[string]any{
		"type":    a.notificationType,
		"message": message,
	}, nil
}
