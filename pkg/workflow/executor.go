// Package workflow drives workflow instances through their step graphs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/tenantflow/pkg/definitions"
	"github.com/dukex/tenantflow/pkg/eventbus"
	"github.com/dukex/tenantflow/pkg/events"
	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/otelhelper"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// StartResult is returned by Start before the instance finished executing.
type StartResult struct {
	InstanceID string                `json:"instance_id"`
	WorkflowID string                `json:"workflow_id"`
	Status     models.InstanceStatus `json:"status"`
}

// ResumeResult reports the status an instance reached after resuming.
type ResumeResult struct {
	InstanceID string                `json:"instance_id"`
	Status     models.InstanceStatus `json:"status"`
}

// StatusReport is a snapshot of an instance with its state and step history.
type StatusReport struct {
	Instance *models.WorkflowInstance  `json:"instance"`
	State    *models.ExecutionState    `json:"state"`
	History  []*models.StepHistoryEntry `json:"history"`
}

// Executor starts, resumes and inspects workflow instances.
type Executor struct {
	instances   persistence.InstanceRepository
	states      persistence.ExecutionStateRepository
	history     persistence.StepHistoryRepository
	definitions definitions.Provider
	processor   *Processor
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	wg          sync.WaitGroup
}

type ExecutorOption func(*Executor)

// WithPublisher publishes instance lifecycle events. Publishing failures are
// logged and never affect execution.
func WithPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func NewExecutor(
	logger *slog.Logger,
	store persistence.Persistence,
	provider definitions.Provider,
	processor *Processor,
	opts ...ExecutorOption,
) *Executor {
	executor := &Executor{
		instances:   store.InstanceRepository(),
		states:      store.ExecutionStateRepository(),
		history:     store.StepHistoryRepository(),
		definitions: provider,
		processor:   processor,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "workflow_executor"),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// run carries what the drive loop needs about one instance.
type run struct {
	instance   *models.WorkflowInstance
	definition *models.WorkflowDefinition
	logger     *slog.Logger
}

func (e *Executor) newRun(instance *models.WorkflowInstance, definition *models.WorkflowDefinition) *run {
	return &run{
		instance:   instance,
		definition: definition,
		logger: e.logger.With(
			"instance_id", instance.InstanceID,
			"workflow_id", instance.WorkflowID,
			"tenant_id", instance.TenantID,
		),
	}
}

// Start creates an instance of an approved workflow owned by the tenant and
// executes it in the background until it suspends or terminates. It returns
// as soon as the instance and its initial state are stored.
func (e *Executor) Start(
	ctx context.Context,
	workflowID, tenantID string,
	triggerData map[string]any,
) (*StartResult, error) {
	if err := errors.Join(requireField("workflow_id", workflowID), requireField("tenant_id", tenantID)); err != nil {
		return nil, err
	}

	definition, err := e.definitions.GetDefinition(ctx, workflowID, tenantID)
	if err != nil {
		return nil, err
	}

	if !definition.OwnedBy(tenantID) {
		return nil, persistence.NewDefinitionError("Start", workflowID, tenantID, persistence.ErrDefinitionNotFound)
	}

	instance := &models.WorkflowInstance{
		InstanceID:  "inst-" + uuid.New().String(),
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		Status:      models.InstanceStatusRunning,
		TriggerData: cloneVariables(triggerData),
		StartedAt:   time.Now().UTC(),
	}

	if err := e.instances.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	variables := cloneVariables(triggerData)
	variables[TenantVariable] = tenantID

	err = e.states.Save(ctx, &models.ExecutionState{
		InstanceID: instance.InstanceID,
		Variables:  variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create execution state: %w", err)
	}

	r := e.newRun(instance, definition)
	r.logger.InfoContext(ctx, "workflow instance created")

	started := events.InstanceStarted{
		BaseEvent:   e.baseEvent(events.InstanceStartedEvent, instance),
		TriggerData: instance.TriggerData,
	}
	e.publish(ctx, instance.InstanceID, started)

	start, ok := FindStartStep(definition)
	if !ok {
		status := e.fail(ctx, r, "", variables, ErrNoStartStep.Error())

		return &StartResult{InstanceID: instance.InstanceID, WorkflowID: workflowID, Status: status}, nil
	}

	driveCtx := context.WithoutCancel(ctx)

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		e.drive(driveCtx, r, start.ID, variables)
	}()

	return &StartResult{
		InstanceID: instance.InstanceID,
		WorkflowID: workflowID,
		Status:     models.InstanceStatusRunning,
	}, nil
}

// Resume continues an instance suspended at a user-task. When stepID is not
// empty it must name the step the instance is waiting at. The user input is
// merged into the variables and execution continues synchronously until the
// instance suspends again or terminates.
func (e *Executor) Resume(
	ctx context.Context,
	instanceID, tenantID string,
	stepID models.StepID,
	userInput map[string]any,
) (*ResumeResult, error) {
	if err := errors.Join(requireField("instance_id", instanceID), requireField("tenant_id", tenantID)); err != nil {
		return nil, err
	}

	instance, err := e.instances.GetByID(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceStatusWaiting {
		return nil, resumeConflict(instance.Status)
	}

	state, err := e.states.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if stepID != "" && stepID != state.CurrentStep {
		return nil, fmt.Errorf("%w: waiting at %s, got %s", ErrStepMismatch, state.CurrentStep, stepID)
	}

	definition, err := e.definitions.GetDefinition(ctx, instance.WorkflowID, tenantID)
	if err != nil {
		return nil, err
	}

	instance, err = e.instances.TransitionStatus(ctx, instanceID,
		models.InstanceStatusWaiting, models.InstanceStatusRunning, "")
	if err != nil {
		var conflict *persistence.StatusConflictError
		if errors.As(err, &conflict) {
			return nil, resumeConflict(conflict.Actual)
		}

		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	r := e.newRun(instance, definition)

	variables := cloneVariables(state.Variables)
	maps.Copy(variables, cloneVariables(userInput))

	resumed := events.InstanceResumed{
		BaseEvent: e.baseEvent(events.InstanceResumedEvent, instance),
		StepID:    string(state.CurrentStep),
		UserInput: userInput,
	}
	e.publish(ctx, instanceID, resumed)

	r.logger.InfoContext(ctx, "workflow instance resumed", "step_id", state.CurrentStep)

	step, ok := FindStep(definition, state.CurrentStep)
	if !ok {
		status := e.fail(ctx, r, state.CurrentStep, variables,
			fmt.Sprintf("%s: %s", ErrStepNotFound, state.CurrentStep))

		return &ResumeResult{InstanceID: instanceID, Status: status}, nil
	}

	next := step.Next

	err = e.states.Save(ctx, &models.ExecutionState{
		InstanceID:  instanceID,
		CurrentStep: next,
		Variables:   variables,
	})
	if err != nil {
		status := e.fail(ctx, r, step.ID, variables, err.Error())

		return &ResumeResult{InstanceID: instanceID, Status: status}, nil
	}

	var status models.InstanceStatus
	if next == "" {
		status = e.complete(ctx, r, variables)
	} else {
		status = e.drive(ctx, r, next, variables)
	}

	return &ResumeResult{InstanceID: instanceID, Status: status}, nil
}

// Status returns the instance with its current state and step history.
func (e *Executor) Status(ctx context.Context, instanceID, tenantID string) (*StatusReport, error) {
	if err := errors.Join(requireField("instance_id", instanceID), requireField("tenant_id", tenantID)); err != nil {
		return nil, err
	}

	instance, err := e.instances.GetByID(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}

	state, err := e.states.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	history, err := e.history.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	return &StatusReport{Instance: instance, State: state, History: history}, nil
}

// RecentInstances lists the newest instances of a tenant.
func (e *Executor) RecentInstances(ctx context.Context, tenantID string, limit int) ([]*models.WorkflowInstance, error) {
	if err := requireField("tenant_id", tenantID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}

	return e.instances.ListByTenant(ctx, tenantID, limit)
}

// Cancel stops an instance waiting at a user-task.
func (e *Executor) Cancel(ctx context.Context, instanceID, tenantID, reason string) (*models.WorkflowInstance, error) {
	if err := errors.Join(requireField("instance_id", instanceID), requireField("tenant_id", tenantID)); err != nil {
		return nil, err
	}

	instance, err := e.instances.GetByID(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceStatusWaiting {
		return nil, cancelConflict(instance.Status)
	}

	instance, err = e.instances.TransitionStatus(ctx, instanceID,
		models.InstanceStatusWaiting, models.InstanceStatusCancelled, "")
	if err != nil {
		var conflict *persistence.StatusConflictError
		if errors.As(err, &conflict) {
			return nil, cancelConflict(conflict.Actual)
		}

		return nil, err
	}

	e.clearCurrentStep(ctx, instanceID)

	cancelled := events.InstanceCancelled{
		BaseEvent: e.baseEvent(events.InstanceCancelledEvent, instance),
		Reason:    reason,
	}
	e.publish(ctx, instanceID, cancelled)

	e.logger.InfoContext(ctx, "workflow instance cancelled", "instance_id", instanceID, "reason", reason)

	return instance, nil
}

// ExpireWaiting fails every waiting instance whose user-task timeout elapsed
// before now. It returns the number of expired instances.
func (e *Executor) ExpireWaiting(ctx context.Context, now time.Time) (int, error) {
	waiting, err := e.instances.ListByStatus(ctx, models.InstanceStatusWaiting)
	if err != nil {
		return 0, err
	}

	expired := 0

	for _, instance := range waiting {
		ok, err := e.expire(ctx, instance, now)
		if err != nil {
			e.logger.WarnContext(ctx, "failed to check user task timeout",
				"instance_id", instance.InstanceID, "error", err)

			continue
		}

		if ok {
			expired++
		}
	}

	return expired, nil
}

func (e *Executor) expire(ctx context.Context, instance *models.WorkflowInstance, now time.Time) (bool, error) {
	state, err := e.states.GetByInstanceID(ctx, instance.InstanceID)
	if err != nil {
		return false, err
	}

	definition, err := e.definitions.GetDefinition(ctx, instance.WorkflowID, instance.TenantID)
	if err != nil {
		return false, err
	}

	step, ok := FindStep(definition, state.CurrentStep)
	if !ok || step.Type != models.StepTypeUserTask {
		return false, nil
	}

	timeout, err := step.Config.Timeout.Duration()
	if err != nil || timeout <= 0 {
		return false, err
	}

	if now.Sub(state.UpdatedAt) < timeout {
		return false, nil
	}

	message := fmt.Sprintf("user task %s timed out after %s", step.ID, step.Config.Timeout)

	instance, err = e.instances.TransitionStatus(ctx, instance.InstanceID,
		models.InstanceStatusWaiting, models.InstanceStatusFailed, message)
	if err != nil {
		if persistence.IsStatusConflict(err) {
			return false, nil
		}

		return false, err
	}

	e.clearCurrentStep(ctx, instance.InstanceID)

	failed := events.InstanceFailed{
		BaseEvent:  e.baseEvent(events.InstanceFailedEvent, instance),
		StepID:     string(step.ID),
		Error:      message,
		DurationMs: elapsed(instance),
	}
	e.publish(ctx, instance.InstanceID, failed)

	e.logger.InfoContext(ctx, "user task timed out", "instance_id", instance.InstanceID, "step_id", step.ID)

	return true, nil
}

// Wait blocks until every background execution started by Start returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}

type stepOutcome struct {
	next    models.StepID
	waiting bool
}

// drive executes steps from stepID until the instance suspends or terminates
// and returns the status it reached.
func (e *Executor) drive(ctx context.Context, r *run, stepID models.StepID, variables map[string]any) (status models.InstanceStatus) {
	current := stepID

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.ErrorContext(ctx, "drive loop panicked", "step_id", current, "panic", recovered)
			status = e.fail(ctx, r, current, variables, fmt.Sprintf("unexpected fault at step %s: %v", current, recovered))
		}
	}()

	for {
		outcome, err := e.runStep(ctx, r, current, variables)
		if err != nil {
			return e.fail(ctx, r, current, variables, err.Error())
		}

		if outcome.waiting {
			return models.InstanceStatusWaiting
		}

		if outcome.next == "" {
			return e.complete(ctx, r, variables)
		}

		current = outcome.next
	}
}

// runStep executes one step: it records the history entry, applies the
// step's side effect, merges new variables and persists the state pointing
// at the successor.
func (e *Executor) runStep(
	ctx context.Context,
	r *run,
	stepID models.StepID,
	variables map[string]any,
) (outcome stepOutcome, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.InstanceIDKey, r.instance.InstanceID),
		attribute.String(otelhelper.WorkflowIDKey, r.instance.WorkflowID),
		attribute.String(otelhelper.TenantIDKey, r.instance.TenantID),
		attribute.String(otelhelper.StepIDKey, string(stepID)),
	)
	defer span.End()

	step, ok := FindStep(r.definition, stepID)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		otelhelper.SetError(span, err)

		return outcome, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
		attribute.String(otelhelper.StepActionKey, string(step.Action)),
	)

	entry := &models.StepHistoryEntry{
		InstanceID: r.instance.InstanceID,
		StepID:     step.ID,
		StepName:   step.Name,
		StepType:   step.Type,
		Status:     models.StepStatusStarted,
		InputData:  cloneVariables(variables),
		StartedAt:  time.Now().UTC(),
	}

	if err = e.history.Append(ctx, entry); err != nil {
		otelhelper.SetError(span, err)

		return outcome, fmt.Errorf("failed to record step %s: %w", step.ID, err)
	}

	defer func() {
		if err != nil && !entry.Closed() {
			otelhelper.SetError(span, err)
			e.finishEntry(ctx, r, entry, models.StepStatusFailed, nil, err.Error())
		}
	}()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("unexpected fault at step %s: %v", step.ID, recovered)
		}
	}()

	r.logger.DebugContext(ctx, "executing step", "step_id", step.ID, "type", step.Type)

	if step.Type == models.StepTypeUserTask {
		return e.suspend(ctx, r, step, entry, variables)
	}

	result, err := e.processor.Process(ctx, step, variables)
	if err != nil {
		return outcome, err
	}

	maps.Copy(variables, result.NewVariables)

	next := result.NextStep
	if result.Completed {
		next = ""
	}

	err = e.states.Save(ctx, &models.ExecutionState{
		InstanceID:  r.instance.InstanceID,
		CurrentStep: next,
		Variables:   cloneVariables(variables),
	})
	if err != nil {
		return outcome, fmt.Errorf("failed to save execution state: %w", err)
	}

	e.finishEntry(ctx, r, entry, models.StepStatusCompleted, result.Output, "")

	return stepOutcome{next: next}, nil
}

// suspend parks the instance at a user-task.
func (e *Executor) suspend(
	ctx context.Context,
	r *run,
	step *models.Step,
	entry *models.StepHistoryEntry,
	variables map[string]any,
) (stepOutcome, error) {
	err := e.states.Save(ctx, &models.ExecutionState{
		InstanceID:  r.instance.InstanceID,
		CurrentStep: step.ID,
		Variables:   cloneVariables(variables),
	})
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to save execution state: %w", err)
	}

	instance, err := e.instances.TransitionStatus(ctx, r.instance.InstanceID,
		models.InstanceStatusRunning, models.InstanceStatusWaiting, "")
	if err != nil {
		return stepOutcome{}, err
	}

	r.instance = instance

	e.finishEntry(ctx, r, entry, models.StepStatusCompleted, waitingOutput(step, "Waiting for user input"), "")

	waiting := events.InstanceWaiting{
		BaseEvent:  e.baseEvent(events.InstanceWaitingEvent, instance),
		StepID:     string(step.ID),
		StepName:   step.Name,
		Assignment: step.Config.Assignment,
		Timeout:    string(step.Config.Timeout),
	}
	e.publish(ctx, instance.InstanceID, waiting)

	r.logger.InfoContext(ctx, "workflow instance waiting for user input", "step_id", step.ID)

	return stepOutcome{waiting: true}, nil
}

func (e *Executor) finishEntry(
	ctx context.Context,
	r *run,
	entry *models.StepHistoryEntry,
	status models.StepStatus,
	output map[string]any,
	message string,
) {
	completedAt := time.Now().UTC()

	entry.Status = status
	entry.OutputData = output
	entry.ErrorMessage = message
	entry.CompletedAt = &completedAt

	if err := e.history.Finish(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "failed to close step history entry", "step_id", entry.StepID, "error", err)
	}
}

func (e *Executor) complete(ctx context.Context, r *run, variables map[string]any) models.InstanceStatus {
	instance, err := e.instances.TransitionStatus(ctx, r.instance.InstanceID,
		models.InstanceStatusRunning, models.InstanceStatusCompleted, "")
	if err != nil {
		return e.fail(ctx, r, "", variables, fmt.Sprintf("failed to complete instance: %v", err))
	}

	r.instance = instance

	e.saveFinalState(ctx, r, variables)

	completed := events.InstanceCompleted{
		BaseEvent:  e.baseEvent(events.InstanceCompletedEvent, instance),
		DurationMs: elapsed(instance),
	}
	e.publish(ctx, instance.InstanceID, completed)

	r.logger.InfoContext(ctx, "workflow instance completed")

	return models.InstanceStatusCompleted
}

// fail moves a running instance to FAILED. The instance counts as failed even
// when the transition itself cannot be stored.
func (e *Executor) fail(
	ctx context.Context,
	r *run,
	stepID models.StepID,
	variables map[string]any,
	message string,
) models.InstanceStatus {
	r.logger.ErrorContext(ctx, "workflow instance failed", "step_id", stepID, "error", message)

	instance, err := e.instances.TransitionStatus(ctx, r.instance.InstanceID,
		models.InstanceStatusRunning, models.InstanceStatusFailed, message)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark instance as failed", "error", err)

		return models.InstanceStatusFailed
	}

	r.instance = instance

	e.saveFinalState(ctx, r, variables)

	failed := events.InstanceFailed{
		BaseEvent:  e.baseEvent(events.InstanceFailedEvent, instance),
		StepID:     string(stepID),
		Error:      message,
		DurationMs: elapsed(instance),
	}
	e.publish(ctx, instance.InstanceID, failed)

	return models.InstanceStatusFailed
}

func (e *Executor) saveFinalState(ctx context.Context, r *run, variables map[string]any) {
	err := e.states.Save(ctx, &models.ExecutionState{
		InstanceID: r.instance.InstanceID,
		Variables:  cloneVariables(variables),
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to save final execution state", "error", err)
	}
}

func (e *Executor) clearCurrentStep(ctx context.Context, instanceID string) {
	state, err := e.states.GetByInstanceID(ctx, instanceID)
	if err == nil {
		state.CurrentStep = ""
		err = e.states.Save(ctx, state)
	}

	if err != nil {
		e.logger.WarnContext(ctx, "failed to clear current step", "instance_id", instanceID, "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.NewBaseEvent(eventType, instance.TenantID, instance.WorkflowID, instance.InstanceID)
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func elapsed(instance *models.WorkflowInstance) int64 {
	end := time.Now().UTC()
	if instance.CompletedAt != nil {
		end = *instance.CompletedAt
	}

	return end.Sub(instance.StartedAt).Milliseconds()
}
