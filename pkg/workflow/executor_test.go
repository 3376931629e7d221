package workflow

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/tenantflow/pkg/definitions"
	"github.com/dukex/tenantflow/pkg/eventbus"
	"github.com/dukex/tenantflow/pkg/events"
	"github.com/dukex/tenantflow/pkg/integration"
	"github.com/dukex/tenantflow/pkg/mocks"
	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/dukex/tenantflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	executor *Executor
	store    persistence.Persistence
	gateway  *mocks.MockGateway
	notifier *mocks.MockNotifier
	bus      *mocks.MockEventBus
}

func newTestEnv(t *testing.T, definitions ...*models.WorkflowDefinition) *testEnv {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	for _, definition := range definitions {
		require.NoError(t, store.DefinitionRepository().Save(t.Context(), definition))
	}

	env := &testEnv{
		store:    store,
		gateway:  &mocks.MockGateway{},
		notifier: &mocks.MockNotifier{},
		bus:      &mocks.MockEventBus{},
	}
	env.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.DiscardHandler)
	env.executor = NewExecutor(
		logger,
		store,
		definitionsProvider(store),
		NewProcessor(logger, env.gateway, env.notifier),
		WithPublisher(env.bus),
	)

	return env
}

func definitionsProvider(store persistence.Persistence) definitions.Provider {
	return definitions.NewRepositoryProvider(store.DefinitionRepository())
}

func approved(workflowID, tenantID string, steps ...*models.Step) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Name:       workflowID,
		Status:     models.DefinitionStatusApproved,
		Steps:      steps,
	}
}

// startAndWait starts an instance and waits for its background execution.
func (env *testEnv) startAndWait(t *testing.T, workflowID, tenantID string, trigger map[string]any) *StatusReport {
	t.Helper()

	result, err := env.executor.Start(t.Context(), workflowID, tenantID, trigger)
	require.NoError(t, err)

	env.executor.Wait()

	report, err := env.executor.Status(t.Context(), result.InstanceID, tenantID)
	require.NoError(t, err)

	return report
}

func historyIDs(history []*models.StepHistoryEntry) []models.StepID {
	ids := make([]models.StepID, 0, len(history))
	for _, entry := range history {
		ids = append(ids, entry.StepID)
	}

	return ids
}

func published(bus *mocks.MockEventBus, eventType events.EventType) int {
	count := 0

	for _, call := range bus.Calls {
		if call.Method != "Publish" {
			continue
		}

		if event, ok := call.Arguments.Get(2).(eventbus.Event); ok && event.GetType() == eventType {
			count++
		}
	}

	return count
}

func TestExecutor_Scenario(t *testing.T) {
	env := newTestEnv(t, approved("wf-orders", "tenant-a",
		&models.Step{ID: "1", Type: models.StepTypeStartEvent, Next: "2"},
		&models.Step{ID: "2", Type: models.StepTypeServiceTask, Action: models.ActionAPICall, Next: "3",
			Config: models.StepConfig{Endpoint: "/api/orders", OutputVariable: "v"}},
		&models.Step{ID: "3", Type: models.StepTypeExclusiveGateway, Condition: "v.amount>100",
			Branches: &models.Branches{True: "4", False: "5"}},
		&models.Step{ID: "4", Type: models.StepTypeEndEvent},
		&models.Step{ID: "5", Type: models.StepTypeEndEvent},
	))

	env.gateway.On("Call", mock.Anything, mock.Anything).
		Return(&integration.Response{StatusCode: 200, Data: map[string]any{"amount": "50"}}, nil)

	report := env.startAndWait(t, "wf-orders", "tenant-a", map[string]any{})

	assert.Equal(t, models.InstanceStatusCompleted, report.Instance.Status)
	assert.NotNil(t, report.Instance.CompletedAt)
	assert.Equal(t, []models.StepID{"1", "2", "3", "5"}, historyIDs(report.History))

	for _, entry := range report.History {
		assert.Equal(t, models.StepStatusCompleted, entry.Status, entry.StepID)
	}

	v := report.State.Variables["v"].(map[string]any)
	assert.Equal(t, 50.0, v["amount"])
	assert.Equal(t, "tenant-a", report.State.Variables["tenant_id"])
	assert.Empty(t, report.State.CurrentStep)

	assert.Equal(t, 1, published(env.bus, events.InstanceStartedEvent))
	assert.Equal(t, 1, published(env.bus, events.InstanceCompletedEvent))
}

func TestExecutor_NumericCoercionDrivesBranch(t *testing.T) {
	env := newTestEnv(t, approved("wf-1", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "fetch"},
		&models.Step{ID: "fetch", Type: models.StepTypeServiceTask, Action: models.ActionAPICall, Next: "check",
			Config: models.StepConfig{Endpoint: "/api/orders/{orderId}", OutputVariable: "orderDetails"}},
		&models.Step{ID: "check", Type: models.StepTypeExclusiveGateway, Condition: "orderDetails.order_value > 10000",
			Branches: &models.Branches{True: "big", False: "small"}},
		&models.Step{ID: "big", Type: models.StepTypeEndEvent},
		&models.Step{ID: "small", Type: models.StepTypeEndEvent},
	))

	env.gateway.On("Call", mock.Anything, mock.MatchedBy(func(request *integration.Request) bool {
		return request.Endpoint == "/api/orders/o-9" && request.Headers[TenantHeader] == "tenant-a"
	})).Return(&integration.Response{StatusCode: 200, Data: map[string]any{"order_value": "15000"}}, nil)

	report := env.startAndWait(t, "wf-1", "tenant-a", map[string]any{"orderId": "o-9"})

	assert.Equal(t, models.InstanceStatusCompleted, report.Instance.Status)
	assert.Equal(t, []models.StepID{"start", "fetch", "check", "big"}, historyIDs(report.History))
	assert.Equal(t, 15000.0, report.State.Variables["orderDetails"].(map[string]any)["order_value"])
	assert.Equal(t, true, report.History[2].OutputData["result"])
}

func approvalDefinition() *models.WorkflowDefinition {
	return approved("wf-approval", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "approve"},
		&models.Step{ID: "approve", Name: "Manager approval", Type: models.StepTypeUserTask, Next: "done",
			Config: models.StepConfig{Assignment: "managers", Timeout: "24h"}},
		&models.Step{ID: "done", Type: models.StepTypeEndEvent},
	)
}

func TestExecutor_SuspendResumeRoundTrip(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())
	ctx := t.Context()

	trigger := map[string]any{"orderId": "o-1", "amount": 120.0}
	report := env.startAndWait(t, "wf-approval", "tenant-a", trigger)

	assert.Equal(t, models.InstanceStatusWaiting, report.Instance.Status)
	assert.Equal(t, models.StepID("approve"), report.State.CurrentStep)
	require.Len(t, report.History, 2)
	assert.Equal(t, models.StepStatusCompleted, report.History[1].Status)
	assert.Equal(t, "Waiting for user input", report.History[1].OutputData["message"])
	assert.Equal(t, 1, published(env.bus, events.InstanceWaitingEvent))

	instanceID := report.Instance.InstanceID
	userInput := map[string]any{"approved": true, "comment": "ok"}

	result, err := env.executor.Resume(ctx, instanceID, "tenant-a", "approve", userInput)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, result.Status)

	report, err = env.executor.Status(ctx, instanceID, "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusCompleted, report.Instance.Status)
	assert.Equal(t, []models.StepID{"start", "approve", "done"}, historyIDs(report.History))

	for key, value := range trigger {
		assert.Equal(t, value, report.State.Variables[key], key)
	}

	for key, value := range userInput {
		assert.Equal(t, value, report.State.Variables[key], key)
	}

	assert.Equal(t, 1, published(env.bus, events.InstanceResumedEvent))
}

func TestExecutor_ResumeWithoutStepID(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())

	report := env.startAndWait(t, "wf-approval", "tenant-a", nil)

	result, err := env.executor.Resume(t.Context(), report.Instance.InstanceID, "tenant-a", "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, result.Status)
}

func TestExecutor_ResumeRejections(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())
	ctx := t.Context()

	report := env.startAndWait(t, "wf-approval", "tenant-a", nil)
	instanceID := report.Instance.InstanceID

	_, err := env.executor.Resume(ctx, instanceID, "tenant-a", "done", nil)
	assert.True(t, IsConflict(err))
	assert.True(t, errors.Is(err, ErrStepMismatch))

	_, err = env.executor.Resume(ctx, instanceID, "tenant-b", "approve", nil)
	assert.True(t, IsNotFound(err))

	_, err = env.executor.Resume(ctx, "inst-missing", "tenant-a", "", nil)
	assert.True(t, IsNotFound(err))

	_, err = env.executor.Resume(ctx, "", "tenant-a", "", nil)
	assert.True(t, IsValidationError(err))

	instance, err := env.store.InstanceRepository().GetByID(ctx, instanceID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusWaiting, instance.Status)

	_, err = env.executor.Resume(ctx, instanceID, "tenant-a", "approve", nil)
	require.NoError(t, err)

	_, err = env.executor.Resume(ctx, instanceID, "tenant-a", "approve", nil)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "cannot resume workflow in status COMPLETED")
}

func TestExecutor_ConcurrentResumeHasOneWinner(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())
	ctx := t.Context()

	report := env.startAndWait(t, "wf-approval", "tenant-a", nil)
	instanceID := report.Instance.InstanceID

	const callers = 2

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := env.executor.Resume(ctx, instanceID, "tenant-a", "approve", map[string]any{"approved": true})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case IsConflict(err):
				conflicts++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, conflicts)

	report, err := env.executor.Status(ctx, instanceID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, []models.StepID{"start", "approve", "done"}, historyIDs(report.History))
}

func TestExecutor_TenantIsolation(t *testing.T) {
	env := newTestEnv(t, approved("wf-X", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "end"},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))
	ctx := t.Context()

	_, err := env.executor.Start(ctx, "wf-X", "tenant-b", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	instances, err := env.store.InstanceRepository().ListByTenant(ctx, "tenant-b", 0)
	require.NoError(t, err)
	assert.Empty(t, instances)

	report := env.startAndWait(t, "wf-X", "tenant-a", nil)
	assert.Equal(t, models.InstanceStatusCompleted, report.Instance.Status)

	_, err = env.executor.Status(ctx, report.Instance.InstanceID, "tenant-b")
	assert.True(t, IsNotFound(err))

	recent, err := env.executor.RecentInstances(ctx, "tenant-b", 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestExecutor_StartRejections(t *testing.T) {
	draft := approved("wf-draft", "tenant-a", &models.Step{ID: "start", Type: models.StepTypeStartEvent})
	draft.Status = models.DefinitionStatusDraft

	env := newTestEnv(t, draft)
	ctx := t.Context()

	_, err := env.executor.Start(ctx, "", "tenant-a", nil)
	assert.True(t, IsValidationError(err))

	_, err = env.executor.Start(ctx, "wf-draft", "", nil)
	assert.True(t, IsValidationError(err))

	_, err = env.executor.Start(ctx, "wf-draft", "tenant-a", nil)
	assert.True(t, IsNotFound(err))

	_, err = env.executor.Start(ctx, "wf-missing", "tenant-a", nil)
	assert.True(t, IsNotFound(err))
}

func TestExecutor_MissingStepFailsInstance(t *testing.T) {
	env := newTestEnv(t, approved("wf-broken", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "ghost"},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))

	report := env.startAndWait(t, "wf-broken", "tenant-a", nil)

	assert.Equal(t, models.InstanceStatusFailed, report.Instance.Status)
	assert.Contains(t, report.Instance.ErrorMessage, "ghost")
	assert.NotNil(t, report.Instance.CompletedAt)
	assert.Empty(t, report.State.CurrentStep)
	assert.Equal(t, 1, published(env.bus, events.InstanceFailedEvent))
}

func TestExecutor_GatewayWithoutBranchesFailsInstance(t *testing.T) {
	env := newTestEnv(t, approved("wf-unrouted", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "gw"},
		&models.Step{ID: "gw", Type: models.StepTypeExclusiveGateway, Condition: "x > 1"},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))

	report := env.startAndWait(t, "wf-unrouted", "tenant-a", map[string]any{"x": 5.0})

	assert.Equal(t, models.InstanceStatusFailed, report.Instance.Status)
	assert.Contains(t, report.Instance.ErrorMessage, ErrNoBranches.Error())
	require.Len(t, report.History, 2)
	assert.Equal(t, models.StepID("gw"), report.History[1].StepID)
	assert.Equal(t, models.StepStatusFailed, report.History[1].Status)
}

func TestExecutor_NoStartStep(t *testing.T) {
	env := newTestEnv(t, approved("wf-headless", "tenant-a",
		&models.Step{ID: "task", Type: models.StepTypeServiceTask, Next: "end"},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))

	result, err := env.executor.Start(t.Context(), "wf-headless", "tenant-a", nil)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, result.Status)

	report, err := env.executor.Status(t.Context(), result.InstanceID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, ErrNoStartStep.Error(), report.Instance.ErrorMessage)
	assert.Empty(t, report.History)
}

func TestExecutor_StepFailureFailsInstance(t *testing.T) {
	env := newTestEnv(t, approved("wf-1", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "fetch"},
		&models.Step{ID: "fetch", Type: models.StepTypeServiceTask, Action: models.ActionAPICall, Next: "end",
			Config: models.StepConfig{Endpoint: "/api/orders"}},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))

	env.gateway.On("Call", mock.Anything, mock.Anything).
		Return(nil, &integration.HTTPError{StatusCode: 500, Message: "boom"})

	report := env.startAndWait(t, "wf-1", "tenant-a", nil)

	assert.Equal(t, models.InstanceStatusFailed, report.Instance.Status)
	assert.Contains(t, report.Instance.ErrorMessage, "HTTP 500")

	require.Len(t, report.History, 2)
	assert.Equal(t, models.StepStatusFailed, report.History[1].Status)
	assert.Contains(t, report.History[1].ErrorMessage, "boom")
}

func TestExecutor_UnknownActionFailsInstance(t *testing.T) {
	env := newTestEnv(t, approved("wf-1", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "task"},
		&models.Step{ID: "task", Type: models.StepTypeServiceTask, Action: "ftp-upload", Next: "end"},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))

	report := env.startAndWait(t, "wf-1", "tenant-a", nil)

	assert.Equal(t, models.InstanceStatusFailed, report.Instance.Status)
	assert.Contains(t, report.Instance.ErrorMessage, "unknown action")
}

func TestExecutor_HistoryInputIsSnapshot(t *testing.T) {
	env := newTestEnv(t, approved("wf-1", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "fetch"},
		&models.Step{ID: "fetch", Type: models.StepTypeServiceTask, Action: models.ActionAPICall, Next: "end",
			Config: models.StepConfig{Endpoint: "/api/x", OutputVariable: "x"}},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	))

	env.gateway.On("Call", mock.Anything, mock.Anything).
		Return(&integration.Response{StatusCode: 200, Data: "ok"}, nil)

	report := env.startAndWait(t, "wf-1", "tenant-a", nil)

	require.Len(t, report.History, 3)
	assert.NotContains(t, report.History[1].InputData, "x")
	assert.Equal(t, "ok", report.History[2].InputData["x"])
}

func TestExecutor_Cancel(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())
	ctx := t.Context()

	report := env.startAndWait(t, "wf-approval", "tenant-a", nil)
	instanceID := report.Instance.InstanceID

	instance, err := env.executor.Cancel(ctx, instanceID, "tenant-a", "order withdrawn")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, instance.Status)

	_, err = env.executor.Cancel(ctx, instanceID, "tenant-a", "")
	assert.True(t, IsConflict(err))

	_, err = env.executor.Resume(ctx, instanceID, "tenant-a", "", nil)
	assert.True(t, IsConflict(err))

	state, err := env.store.ExecutionStateRepository().GetByInstanceID(ctx, instanceID)
	require.NoError(t, err)
	assert.Empty(t, state.CurrentStep)
	assert.Equal(t, 1, published(env.bus, events.InstanceCancelledEvent))
}

func TestExecutor_ExpireWaiting(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())
	ctx := t.Context()

	report := env.startAndWait(t, "wf-approval", "tenant-a", nil)
	instanceID := report.Instance.InstanceID

	expired, err := env.executor.ExpireWaiting(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, expired)

	expired, err = env.executor.ExpireWaiting(ctx, time.Now().UTC().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	instance, err := env.store.InstanceRepository().GetByID(ctx, instanceID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, instance.Status)
	assert.Equal(t, "user task approve timed out after 24h", instance.ErrorMessage)
}

func TestExecutor_RecentInstances(t *testing.T) {
	env := newTestEnv(t, approvalDefinition())
	ctx := t.Context()

	for range 3 {
		env.startAndWait(t, "wf-approval", "tenant-a", nil)
	}

	recent, err := env.executor.RecentInstances(ctx, "tenant-a", 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	recent, err = env.executor.RecentInstances(ctx, "tenant-a", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	_, err = env.executor.RecentInstances(ctx, "", 0)
	assert.True(t, IsValidationError(err))
}

func TestExecutor_PublishFailureDoesNotAffectExecution(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.DefinitionRepository().Save(t.Context(), approved("wf-1", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent, Next: "end"},
		&models.Step{ID: "end", Type: models.StepTypeEndEvent},
	)))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	logger := slog.New(slog.DiscardHandler)
	executor := NewExecutor(logger, store, definitionsProvider(store),
		NewProcessor(logger, nil, nil), WithPublisher(bus))

	result, err := executor.Start(t.Context(), "wf-1", "tenant-a", nil)
	require.NoError(t, err)

	executor.Wait()

	report, err := executor.Status(t.Context(), result.InstanceID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, report.Instance.Status)
}

func TestExecutor_StoreFailureDuringStart(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.GetMockInstanceRepository().On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	provider := &mocks.MockDefinitionProvider{}
	provider.On("GetDefinition", mock.Anything, "wf-1", "tenant-a").Return(approved("wf-1", "tenant-a",
		&models.Step{ID: "start", Type: models.StepTypeStartEvent}), nil)

	logger := slog.New(slog.DiscardHandler)
	executor := NewExecutor(logger, store, provider, NewProcessor(logger, nil, nil))

	_, err := executor.Start(t.Context(), "wf-1", "tenant-a", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	store.GetMockExecutionStateRepository().AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
