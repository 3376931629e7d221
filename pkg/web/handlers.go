package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/dukex/tenantflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// TenantHeader carries the tenant id when the API gateway already resolved it.
const TenantHeader = "X-Tenant-ID"

type APIHandlers struct {
	executor    *workflow.Executor
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	executor *workflow.Executor,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executor:    executor,
		persistence: persistence,
		validator:   validator,
	}
}

// tenantID prefers the header set by the authenticating gateway. The body or
// query value is only used when the header is absent.
func tenantID(c fiber.Ctx, explicit string) string {
	if header := c.Get(TenantHeader); header != "" {
		return header
	}

	return explicit
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "tenantflow execution service is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "tenantflow execution service is unhealthy"
		httpStatus = http.StatusServiceUnavailable
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.TenantID = tenantID(c, req.TenantID)

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.executor.Start(c.Context(), req.WorkflowID, req.TenantID, req.TriggerData)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TriggerResponse{
		Message:    "Workflow triggered successfully",
		InstanceID: result.InstanceID,
		WorkflowID: result.WorkflowID,
		Status:     result.Status,
	})
}

func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req ResumeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.TenantID = tenantID(c, req.TenantID)

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.executor.Resume(c.Context(), instanceID, req.TenantID, req.StepID, req.UserInput)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(ResumeResponse{
		Message:    "Workflow resumed successfully",
		InstanceID: result.InstanceID,
		Status:     result.Status,
	})
}

func (h *APIHandlers) GetInstanceStatus(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return badRequest(c, "Instance ID is required")
	}

	tenant := tenantID(c, c.Query("tenant_id"))
	if tenant == "" {
		return badRequest(c, "Tenant ID is required")
	}

	report, err := h.executor.Status(c.Context(), instanceID, tenant)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetRecentInstances(c fiber.Ctx) error {
	tenant := tenantID(c, c.Query("tenant_id"))
	if tenant == "" {
		return badRequest(c, "Tenant ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		limit = parsed
	}

	instances, err := h.executor.RecentInstances(c.Context(), tenant, limit)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(RecentInstancesResponse{
		TenantID:  tenant,
		Count:     len(instances),
		Instances: instances,
	})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.TenantID = tenantID(c, req.TenantID)

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.executor.Cancel(c.Context(), instanceID, req.TenantID, req.Reason)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(instance)
}

// bindOptionalJSON accepts an empty body so the tenant can come from the header alone.
func bindOptionalJSON(c fiber.Ctx, target any) error {
	if len(c.Body()) == 0 {
		return nil
	}

	return c.Bind().JSON(target)
}

// RegisterRoutes mounts the execution endpoints on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	e := app.Group("/api/execution")
	e.Post("/trigger", h.TriggerWorkflow)
	e.Get("/instances/recent", h.GetRecentInstances)
	e.Get("/instances/:instanceId/status", h.GetInstanceStatus)
	e.Post("/instances/:instanceId/resume", h.ResumeWorkflow)
	e.Post("/instances/:instanceId/cancel", h.CancelInstance)
}
