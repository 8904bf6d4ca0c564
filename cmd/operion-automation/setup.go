package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/operion-automation/pkg/automation"
	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/definitions"
	"github.com/dukex/operion-automation/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func setupLogger(command *cli.Command, module string) *slog.Logger {
	log.Setup(command.String("log-level"), command.String("log-format"))

	return log.WithModule(module)
}

func loadConfig(command *cli.Command) (config.Config, error) {
	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func loadDefinitions(path string) (definitions.Definitions, error) {
	if path == "" {
		return definitions.Definitions{}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return definitions.Definitions{}, fmt.Errorf("failed to read definitions: %w", err)
	}

	if info.IsDir() {
		return definitions.LoadDir(path)
	}

	return definitions.Load(path)
}

// installDefinitions adds the loaded workflows before the rules that may start them.
func installDefinitions(engine *automation.Engine, defs definitions.Definitions) error {
	for _, wf := range defs.Workflows {
		if err := engine.AddWorkflow(wf); err != nil {
			return err
		}
	}

	for _, rule := range defs.Rules {
		if err := engine.AddRule(rule); err != nil {
			return err
		}
	}

	return nil
}
