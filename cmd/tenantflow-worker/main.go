// Package main provides the tenantflow worker: it starts workflows for
// domain events and expires timed out user-tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/tenantflow/pkg/cmd"
	"github.com/dukex/tenantflow/pkg/log"
	"github.com/dukex/tenantflow/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "tenantflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workflows from domain events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "definitions-url",
				Usage:   "Workflow registry base URL; definitions are read from the database when empty",
				Sources: cli.EnvVars("DEFINITIONS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the definition cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "definition-cache-ttl",
				Usage:   "How long cached definitions stay valid",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("DEFINITION_CACHE_TTL"),
			},
			&cli.StringFlag{
				Name:    "integration-url",
				Usage:   "Base URL for relative api-call endpoints",
				Sources: cli.EnvVars("INTEGRATION_URL"),
			},
			&cli.StringFlag{
				Name:    "notification-url",
				Usage:   "Notification service URL; notifications are only logged when empty",
				Sources: cli.EnvVars("NOTIFICATION_URL"),
			},
			&cli.StringFlag{
				Name:    "triggers-file",
				Usage:   "YAML file mapping tenant domain events to workflows",
				Sources: cli.EnvVars("TRIGGERS_FILE"),
			},
			&cli.StringFlag{
				Name:    "timeout-sweep-schedule",
				Usage:   "Cron schedule for expiring user-tasks",
				Value:   workflow.DefaultSweepSchedule,
				Sources: cli.EnvVars("TIMEOUT_SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces with OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("tenantflow-worker").With("workerId", workerID)

	logger.InfoContext(ctx, "Initializing tenantflow worker")

	triggers, err := LoadTriggerMap(command.String("triggers-file"))
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		err := persistence.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "tenantflow-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	provider, err := cmd.NewDefinitionProvider(logger, persistence,
		command.String("definitions-url"), command.String("redis-url"), command.Duration("definition-cache-ttl"))
	if err != nil {
		return err
	}

	tracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "tenantflow-worker")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	processor := workflow.NewProcessor(logger,
		cmd.NewGateway(logger, command.String("integration-url")),
		cmd.NewNotifier(logger, command.String("notification-url")))

	executor := workflow.NewExecutor(logger, persistence, provider, processor,
		workflow.WithPublisher(eventBus), workflow.WithTracer(tracer))

	worker := NewWorkerManager(
		workerID,
		executor,
		eventBus,
		triggers,
		workflow.NewTimeoutSweeper(logger, executor, command.String("timeout-sweep-schedule")),
		logger,
	)

	err = worker.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to run worker", "error", err)

		return err
	}

	return nil
}
