package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/operion-automation/pkg/automation"
	"github.com/dukex/operion-automation/pkg/cmd"
	"github.com/dukex/operion-automation/pkg/eventbus"
	"github.com/dukex/operion-automation/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func NewEmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "emit",
		Usage: "Publish one domain notification, or process it locally and print the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "kind",
				Usage:    "Notification kind (task_created, task_updated, task_completed, learning_insight, priority_changed)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "task-id",
				Usage: "Task the notification refers to",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "JSON payload: a task, a changes object, an insight or a priority change",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Where to send the notification (local, kafka)",
				Value:   "local",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := setupLogger(command, "operion-automation-emit")

			n, err := buildNotification(eventbus.Kind(command.String("kind")), command.String("task-id"), []byte(command.String("data")))
			if err != nil {
				return err
			}

			if command.String("event-bus") != "local" {
				pub, _, err := cmd.NewChannel(command.String("event-bus"), command.String("kafka-brokers"), "operion-automation-emit", logger)
				if err != nil {
					return err
				}

				publisher := eventbus.NewPublisher(pub)
				defer publisher.Close()

				if err := publisher.Publish(ctx, n); err != nil {
					return fmt.Errorf("failed to publish notification: %w", err)
				}

				logger.InfoContext(ctx, "Notification published", "kind", n.Kind, "task_id", n.TaskID)

				return nil
			}

			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			defs, err := loadDefinitions(command.String("definitions"))
			if err != nil {
				return err
			}

			engine, err := automation.New(logger, cfg, automation.Dependencies{})
			if err != nil {
				return err
			}

			if err := engine.Start(ctx); err != nil {
				return err
			}
			defer engine.Stop(context.Background())

			if err := installDefinitions(engine, defs); err != nil {
				return err
			}

			if err := eventbus.Dispatch(ctx, n, engine); err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(engine.History())
		},
	}
}

func buildNotification(kind eventbus.Kind, taskID string, data []byte) (eventbus.Notification, error) {
	switch kind {
	case eventbus.KindTaskCreated, eventbus.KindTaskCompleted:
		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return eventbus.Notification{}, fmt.Errorf("invalid task payload: %w", err)
		}

		if task.ID == "" {
			task.ID = taskID
		}

		if kind == eventbus.KindTaskCreated {
			return eventbus.TaskCreated(task)
		}

		return eventbus.TaskCompleted(task)
	case eventbus.KindTaskUpdated:
		var changes map[string]any
		if err := json.Unmarshal(data, &changes); err != nil {
			return eventbus.Notification{}, fmt.Errorf("invalid changes payload: %w", err)
		}

		n, err := eventbus.TaskUpdated(taskID, changes)
		if err != nil {
			return n, err
		}

		return n, n.Validate()
	case eventbus.KindLearningInsight:
		var insight models.LearningInsight
		if err := json.Unmarshal(data, &insight); err != nil {
			return eventbus.Notification{}, fmt.Errorf("invalid insight payload: %w", err)
		}

		return eventbus.LearningInsightGenerated(insight)
	case eventbus.KindPriorityChanged:
		var change models.PriorityChange
		if err := json.Unmarshal(data, &change); err != nil {
			return eventbus.Notification{}, fmt.Errorf("invalid priority change payload: %w", err)
		}

		n, err := eventbus.PriorityChanged(taskID, change)
		if err != nil {
			return n, err
		}

		return n, n.Validate()
	default:
		return eventbus.Notification{}, fmt.Errorf("%w: %s", eventbus.ErrUnknownKind, kind)
	}
}
