package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "operion-automation",
		EnableShellCompletion: true,
		Usage:                 "Event-driven task automation engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file (defaults are used when missing)",
				Sources: cli.EnvVars("AUTOMATION_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "definitions",
				Aliases: []string{"d"},
				Usage:   "File or directory with rule and workflow definitions",
				Sources: cli.EnvVars("AUTOMATION_DEFINITIONS"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewEmitCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
