// Package passthrough provides the default action used for unregistered action types.
package passthrough

import (
	"context"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/protocol"
)

// ActionFactory creates passthrough actions.
type ActionFactory struct {
	id string
}

// NewActionFactory creates a passthrough factory registered under "passthrough".
func NewActionFactory() *ActionFactory {
	return &ActionFactory{id: "passthrough"}
}

func (f *ActionFactory) ID() string {
	return f.id
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return &Action{config: config}, nil
}

// Action succeeds without side effects and echoes its configuration.
type Action struct {
	config map[string]any
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	logger.DebugContext(ctx, "Passthrough action executed", "config", a.config)

	result := make(map[string]any, len(a.config)+1)
	for k, v := range a.config {
		result[k] = v
	}

	result["passthrough"] = true

	return result, nil
}
