// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/operion-automation/pkg/registry"
)

// RegisterActionPlugins loads action plugins from pluginsPath into reg.
func RegisterActionPlugins(logger *slog.Logger, reg *registry.Registry, pluginsPath string) error {
	if pluginsPath == "" {
		return nil
	}

	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return err
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
		logger.Info("Registered action plugin", "type", plugin.ID())
	}

	return nil
}
