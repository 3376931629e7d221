// Package main provides the tenantflow execution API server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/tenantflow/pkg/cmd"
	"github.com/dukex/tenantflow/pkg/log"
	"github.com/dukex/tenantflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 3003

func main() {
	command := &cli.Command{
		Name:                  "tenantflow-api",
		Usage:                 "Start, resume and inspect workflow instances",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type for lifecycle events (kafka, gochannel); disabled when empty",
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

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing tenantflow API")

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

	provider, err := cmd.NewDefinitionProvider(logger, persistence,
		command.String("definitions-url"), command.String("redis-url"), command.Duration("definition-cache-ttl"))
	if err != nil {
		return err
	}

	tracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "tenantflow-api")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	options := []workflow.ExecutorOption{workflow.WithTracer(tracer)}

	if busType := command.String("event-bus"); busType != "" {
		eventBus, err := cmd.NewEventBus(busType, command.String("kafka-brokers"), "tenantflow-api", logger)
		if err != nil {
			return err
		}

		defer func() {
			err := eventBus.Close()
			if err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		options = append(options, workflow.WithPublisher(eventBus))
	}

	processor := workflow.NewProcessor(logger,
		cmd.NewGateway(logger, command.String("integration-url")),
		cmd.NewNotifier(logger, command.String("notification-url")))

	executor := workflow.NewExecutor(logger, persistence, provider, processor, options...)

	api := NewAPI(logger, persistence, executor)

	err = api.Start(command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)

		return err
	}

	return nil
}
