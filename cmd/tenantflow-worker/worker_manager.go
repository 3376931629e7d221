package main

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/tenantflow/pkg/eventbus"
	"github.com/dukex/tenantflow/pkg/events"
	"github.com/dukex/tenantflow/pkg/workflow"
)

// WorkerManager starts workflows for domain events and expires timed out
// user-tasks.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	executor *workflow.Executor
	eventBus eventbus.EventBus
	triggers *TriggerMap
	sweeper  *workflow.TimeoutSweeper
}

func NewWorkerManager(
	id string,
	executor *workflow.Executor,
	eventBus eventbus.EventBus,
	triggers *TriggerMap,
	sweeper *workflow.TimeoutSweeper,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "tenantflow-worker", "worker_id", id),
		executor: executor,
		eventBus: eventBus,
		triggers: triggers,
		sweeper:  sweeper,
	}
}

// Start registers the handlers, subscribes to the bus and starts the sweeper.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.DomainEventType, w.handleDomainEvent)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if w.sweeper != nil {
		if err := w.sweeper.Start(ctx); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// Run starts the worker and blocks until a termination signal or ctx is done.
func (w *WorkerManager) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker...")

	w.Stop()

	return nil
}

// Stop halts the sweeper and waits for running executions.
func (w *WorkerManager) Stop() {
	if w.sweeper != nil {
		<-w.sweeper.Stop().Done()
	}

	w.executor.Wait()
}

func (w *WorkerManager) handleDomainEvent(ctx context.Context, event any) error {
	domainEvent, ok := event.(*events.DomainEvent)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for DomainEvent")

		return nil
	}

	logger := w.logger.With(
		"event_id", domainEvent.ID,
		"event_type", domainEvent.EventType,
		"tenant_id", domainEvent.TenantID,
	)

	if err := domainEvent.Validate(); err != nil {
		logger.WarnContext(ctx, "Dropping invalid domain event", "error", err)

		return nil
	}

	workflowID, ok := w.triggers.Lookup(domainEvent.TenantID, domainEvent.EventType)
	if !ok {
		logger.DebugContext(ctx, "No workflow registered for domain event")

		return nil
	}

	triggerData := make(map[string]any, len(domainEvent.Data)+1)
	maps.Copy(triggerData, domainEvent.Data)

	triggerData["event"] = map[string]any{
		"id":          domainEvent.ID,
		"type":        domainEvent.EventType,
		"occurred_at": domainEvent.OccurredAt.Format(time.RFC3339Nano),
	}

	result, err := w.executor.Start(ctx, workflowID, domainEvent.TenantID, triggerData)
	if err != nil {
		if workflow.IsValidationError(err) || workflow.IsNotFound(err) {
			logger.WarnContext(ctx, "Cannot start workflow for domain event", "workflow_id", workflowID, "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to start workflow", "workflow_id", workflowID, "error", err)

		return err
	}

	logger.InfoContext(ctx, "Workflow started for domain event",
		"workflow_id", workflowID, "instance_id", result.InstanceID)

	return nil
}
