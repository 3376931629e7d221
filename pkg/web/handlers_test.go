package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dukex/tenantflow/pkg/definitions"
	"github.com/dukex/tenantflow/pkg/integration"
	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/dukex/tenantflow/pkg/persistence/file"
	"github.com/dukex/tenantflow/pkg/web"
	"github.com/dukex/tenantflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app      *fiber.App
	executor *workflow.Executor
	store    persistence.Persistence
}

func setupTestApp(t *testing.T) *testServer {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	for _, definition := range []*models.WorkflowDefinition{
		{
			WorkflowID: "wf-approval",
			TenantID:   "tenant-a",
			Name:       "Approval",
			Status:     models.DefinitionStatusApproved,
			Steps: []*models.Step{
				{ID: "start", Type: models.StepTypeStartEvent, Next: "approve"},
				{ID: "approve", Type: models.StepTypeUserTask, Next: "done"},
				{ID: "done", Type: models.StepTypeEndEvent},
			},
		},
		{
			WorkflowID: "wf-draft",
			TenantID:   "tenant-a",
			Name:       "Draft",
			Status:     models.DefinitionStatusDraft,
			Steps:      []*models.Step{{ID: "start", Type: models.StepTypeStartEvent}},
		},
	} {
		require.NoError(t, store.DefinitionRepository().Save(t.Context(), definition))
	}

	logger := slog.New(slog.DiscardHandler)
	executor := workflow.NewExecutor(
		logger,
		store,
		definitions.NewRepositoryProvider(store.DefinitionRepository()),
		workflow.NewProcessor(logger, nil, integration.NewLogNotifier(logger)),
	)

	handlers := web.NewAPIHandlers(executor, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testServer{app: app, executor: executor, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

// trigger starts the approval workflow and waits until it suspends.
func (s *testServer) trigger(t *testing.T) string {
	t.Helper()

	status, body := s.do(t, http.MethodPost, "/api/execution/trigger", web.TriggerRequest{
		WorkflowID:  "wf-approval",
		TenantID:    "tenant-a",
		TriggerData: map[string]any{"orderId": "o-1"},
	}, nil)
	require.Equal(t, http.StatusCreated, status, string(body))

	var response web.TriggerResponse
	require.NoError(t, json.Unmarshal(body, &response))

	s.executor.Wait()

	return response.InstanceID
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	return problem["type"].(string)
}

func TestAPIHandlers_TriggerWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		headers        map[string]string
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "created",
			body:           web.TriggerRequest{WorkflowID: "wf-approval", TenantID: "tenant-a"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "tenant from header",
			body:           web.TriggerRequest{WorkflowID: "wf-approval"},
			headers:        map[string]string{web.TenantHeader: "tenant-a"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing tenant",
			body:           web.TriggerRequest{WorkflowID: "wf-approval"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "missing workflow",
			body:           web.TriggerRequest{TenantID: "tenant-a"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "other tenant",
			body:           web.TriggerRequest{WorkflowID: "wf-approval", TenantID: "tenant-b"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "not_found",
		},
		{
			name:           "header tenant wins over body",
			body:           web.TriggerRequest{WorkflowID: "wf-approval", TenantID: "tenant-a"},
			headers:        map[string]string{web.TenantHeader: "tenant-b"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "not_found",
		},
		{
			name:           "not approved",
			body:           web.TriggerRequest{WorkflowID: "wf-draft", TenantID: "tenant-a"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestApp(t)

			status, body := server.do(t, http.MethodPost, "/api/execution/trigger", tt.body, tt.headers)
			server.executor.Wait()

			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))

				return
			}

			var response web.TriggerResponse
			require.NoError(t, json.Unmarshal(body, &response))
			assert.Equal(t, "Workflow triggered successfully", response.Message)
			assert.Equal(t, "wf-approval", response.WorkflowID)
			assert.Equal(t, models.InstanceStatusRunning, response.Status)
			assert.NotEmpty(t, response.InstanceID)
		})
	}
}

func TestAPIHandlers_TriggerInvalidJSON(t *testing.T) {
	server := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/execution/trigger", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ResumeWorkflow(t *testing.T) {
	server := setupTestApp(t)
	instanceID := server.trigger(t)
	path := "/api/execution/instances/" + instanceID + "/resume"

	status, body := server.do(t, http.MethodPost, path, web.ResumeRequest{TenantID: "tenant-a", StepID: "done"}, nil)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, body = server.do(t, http.MethodPost, path, web.ResumeRequest{TenantID: "tenant-b"}, nil)
	assert.Equal(t, http.StatusNotFound, status, string(body))

	status, body = server.do(t, http.MethodPost, path, web.ResumeRequest{
		TenantID:  "tenant-a",
		StepID:    "approve",
		UserInput: map[string]any{"approved": true},
	}, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.ResumeResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, models.InstanceStatusCompleted, response.Status)
	assert.Equal(t, instanceID, response.InstanceID)

	status, body = server.do(t, http.MethodPost, path, nil, map[string]string{web.TenantHeader: "tenant-a"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", problemType(t, body))
}

func TestAPIHandlers_GetInstanceStatus(t *testing.T) {
	server := setupTestApp(t)
	instanceID := server.trigger(t)

	status, body := server.do(t, http.MethodGet, "/api/execution/instances/"+instanceID+"/status?tenant_id=tenant-a", nil, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var report workflow.StatusReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, models.InstanceStatusWaiting, report.Instance.Status)
	assert.Equal(t, models.StepID("approve"), report.State.CurrentStep)
	assert.Equal(t, "o-1", report.State.Variables["orderId"])
	assert.Len(t, report.History, 2)

	status, _ = server.do(t, http.MethodGet, "/api/execution/instances/"+instanceID+"/status", nil,
		map[string]string{web.TenantHeader: "tenant-b"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = server.do(t, http.MethodGet, "/api/execution/instances/"+instanceID+"/status", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_GetRecentInstances(t *testing.T) {
	server := setupTestApp(t)
	server.trigger(t)
	server.trigger(t)

	status, body := server.do(t, http.MethodGet, "/api/execution/instances/recent?tenant_id=tenant-a&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.RecentInstancesResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, "tenant-a", response.TenantID)
	assert.Equal(t, 1, response.Count)

	status, _ = server.do(t, http.MethodGet, "/api/execution/instances/recent?tenant_id=tenant-a&limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodGet, "/api/execution/instances/recent", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_CancelInstance(t *testing.T) {
	server := setupTestApp(t)
	instanceID := server.trigger(t)
	path := "/api/execution/instances/" + instanceID + "/cancel"

	status, body := server.do(t, http.MethodPost, path, web.CancelRequest{TenantID: "tenant-a", Reason: "withdrawn"}, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	assert.Equal(t, models.InstanceStatusCancelled, instance.Status)

	status, _ = server.do(t, http.MethodPost, path, web.CancelRequest{TenantID: "tenant-a"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = server.do(t, http.MethodPost, path, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HeaderTenantTakesPrecedence(t *testing.T) {
	server := setupTestApp(t)
	instanceID := server.trigger(t)
	base := "/api/execution/instances/" + instanceID
	otherTenant := map[string]string{web.TenantHeader: "tenant-b"}

	status, body := server.do(t, http.MethodGet, base+"/status?tenant_id=tenant-a", nil, otherTenant)
	assert.Equal(t, http.StatusNotFound, status, string(body))

	status, body = server.do(t, http.MethodPost, base+"/resume", web.ResumeRequest{TenantID: "tenant-a"}, otherTenant)
	assert.Equal(t, http.StatusNotFound, status, string(body))

	status, body = server.do(t, http.MethodPost, base+"/cancel", web.CancelRequest{TenantID: "tenant-a"}, otherTenant)
	assert.Equal(t, http.StatusNotFound, status, string(body))

	status, body = server.do(t, http.MethodGet, "/api/execution/instances/recent?tenant_id=tenant-a", nil, otherTenant)
	require.Equal(t, http.StatusOK, status, string(body))

	var recent web.RecentInstancesResponse
	require.NoError(t, json.Unmarshal(body, &recent))
	assert.Equal(t, "tenant-b", recent.TenantID)
	assert.Zero(t, recent.Count)

	report, err := server.executor.Status(t.Context(), instanceID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusWaiting, report.Instance.Status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	server := setupTestApp(t)

	status, body := server.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)

	missing := file.NewPersistence(filepath.Join(t.TempDir(), "missing"))
	handlers := web.NewAPIHandlers(server.executor, missing, validator.New())

	app := fiber.New()
	handlers.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
