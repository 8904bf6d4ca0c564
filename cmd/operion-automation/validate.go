package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate the configuration and definition files",
		ArgsUsage: "[definitions path]",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := setupLogger(command, "operion-automation")

			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			path := command.String("definitions")
			if command.Args().Present() {
				path = command.Args().First()
			}

			defs, err := loadDefinitions(path)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Definitions are valid",
				"rules", len(defs.Rules),
				"workflows", len(defs.Workflows),
				"max_concurrent_executions", cfg.MaxConcurrentExecutions,
			)

			fmt.Printf("ok: %d rules, %d workflows\n", len(defs.Rules), len(defs.Workflows))

			return nil
		},
	}
}
