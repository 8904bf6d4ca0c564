// Package logaction implements the log action, which writes a rendered message to the
// execution logger.
package logaction

import (
	"context"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/actions"
	pkglog "github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "log"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return &Action{
		message: actions.String(config, "message", "Automation action executed"),
		level:   pkglog.ParseLevel(actions.String(config, "level", "info")),
	}, nil
}

type Action struct {
	message string
	level   slog.Level
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	message, err := template.RenderString(a.message, input.TemplateData())
	if err != nil {
		return nil, err
	}

	logger.Log(ctx, a.level, message, "task_id", input.ResolveTaskID())

	return map[string]any{"message": message}, nil
}
