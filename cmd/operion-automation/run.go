package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/operion-automation/pkg/automation"
	"github.com/dukex/operion-automation/pkg/cmd"
	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/eventbus"
	"github.com/dukex/operion-automation/pkg/metrics"
	"github.com/dukex/operion-automation/pkg/notification"
	"github.com/dukex/operion-automation/pkg/otelhelper"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the automation engine and consume domain notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "instance-id",
				Aliases: []string{"id"},
				Usage:   "Custom instance ID (auto-generated if not provided)",
				Sources: cli.EnvVars("AUTOMATION_INSTANCE_ID"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing action plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the notification queue (notifications are logged when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-key",
				Usage:   "Redis list notifications are pushed to",
				Value:   notification.DefaultRedisKey,
				Sources: cli.EnvVars("REDIS_NOTIFICATIONS_KEY"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address for the Prometheus metrics endpoint (disabled when empty)",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.FloatFlag{
				Name:    "trace-sample-ratio",
				Usage:   "Fraction of traces to keep (1 keeps all)",
				Value:   1,
				Sources: cli.EnvVars("TRACE_SAMPLE_RATIO"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			instanceID := command.String("instance-id")
			if instanceID == "" {
				instanceID = "automation-" + uuid.New().String()[:8]
			}

			logger := setupLogger(command, "operion-automation").With("instance_id", instanceID)
			logger.InfoContext(ctx, "Initializing Operion Automation")

			if command.Bool("tracing") {
				shutdown, err := otelhelper.Setup(ctx, otelhelper.Options{
					ServiceName: "operion-automation",
					SampleRatio: command.Float("trace-sample-ratio"),
				})
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			defs, err := loadDefinitions(command.String("definitions"))
			if err != nil {
				return err
			}

			recorder, stopMetrics, err := startMetrics(ctx, logger, command.String("metrics-addr"))
			if err != nil {
				return err
			}
			defer stopMetrics()

			sink, closeSink, err := cmd.NewNotificationSink(command.String("redis-url"), command.String("redis-key"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeSink(); err != nil {
					logger.Error("Failed to close notification sink", "error", err)
				}
			}()

			engine, err := automation.New(logger, cfg, automation.Dependencies{
				NotificationSink: sink,
				Recorder:         recorder,
			})
			if err != nil {
				return err
			}

			if err := cmd.RegisterActionPlugins(logger, engine.Registry(), command.String("plugins-path")); err != nil {
				return fmt.Errorf("failed to load action plugins: %w", err)
			}

			if err := engine.Start(ctx); err != nil {
				return err
			}

			defer func() {
				if err := engine.Stop(context.Background()); err != nil {
					logger.Error("Failed to stop automation engine", "error", err)
				}
			}()

			if err := installDefinitions(engine, defs); err != nil {
				return err
			}

			stopCron, err := startOptimizer(ctx, logger, engine, cfg.Scheduling)
			if err != nil {
				return err
			}
			defer stopCron()

			pub, sub, err := cmd.NewChannel(command.String("event-bus"), command.String("kafka-brokers"), "operion-automation", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := pub.Close(); err != nil {
					logger.Error("Failed to close publisher", "error", err)
				}

				if err := sub.Close(); err != nil {
					logger.Error("Failed to close subscriber", "error", err)
				}
			}()

			bridge := eventbus.NewBridge(sub, logger, cfg.MaxConcurrentExecutions)
			engine.OnConfigUpdate(func(updated config.Config) {
				bridge.SetMaxConcurrent(updated.MaxConcurrentExecutions)
			})

			logger.InfoContext(ctx, "Operion Automation running", "event_bus", command.String("event-bus"))

			if err := bridge.Run(ctx, engine); err != nil {
				return err
			}

			logger.Info("Shutting down Operion Automation")

			return nil
		},
	}
}

func startMetrics(ctx context.Context, logger *slog.Logger, addr string) (metrics.Recorder, func(), error) {
	if addr == "" {
		return metrics.Noop{}, func() {}, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder, err := metrics.NewProm("operion_automation", reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "Metrics server failed", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Metrics endpoint listening", "addr", addr)

	return recorder, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown metrics server", "error", err)
		}
	}, nil
}

// startOptimizer runs the scheduled optimization pass on the configured cron expression.
func startOptimizer(
	ctx context.Context,
	logger *slog.Logger,
	engine *automation.Engine,
	cfg config.SchedulingConfig,
) (func(), error) {
	if !cfg.Enabled || cfg.OptimizationCron == "" {
		return func() {}, nil
	}

	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling time zone: %w", err)
	}

	runner := cron.New(cron.WithLocation(location))

	_, err = runner.AddFunc(cfg.OptimizationCron, func() {
		report, err := engine.Scheduling().Optimize(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Scheduled optimization failed", "error", err)

			return
		}

		logger.InfoContext(ctx, "Scheduled optimization finished", "optimizations", report.Optimizations)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid optimization cron: %w", err)
	}

	runner.Start()

	return func() { <-runner.Stop().Done() }, nil
}
