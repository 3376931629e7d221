// Package web provides HTTP request and response types for the execution API.
package web

import "github.com/dukex/tenantflow/pkg/models"

// TriggerRequest starts a workflow instance.
type TriggerRequest struct {
	WorkflowID  string         `json:"workflow_id"  validate:"required"`
	TenantID    string         `json:"tenant_id"    validate:"required"`
	TriggerData map[string]any `json:"trigger_data"`
}

// ResumeRequest continues an instance waiting at a user-task. StepID is optional.
type ResumeRequest struct {
	TenantID  string         `json:"tenant_id"  validate:"required"`
	StepID    models.StepID  `json:"step_id"`
	UserInput map[string]any `json:"user_input"`
}

// CancelRequest cancels an instance waiting at a user-task.
type CancelRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Reason   string `json:"reason"`
}

type TriggerResponse struct {
	Message    string                `json:"message"`
	InstanceID string                `json:"instance_id"`
	WorkflowID string                `json:"workflow_id"`
	Status     models.InstanceStatus `json:"status"`
}

type ResumeResponse struct {
	Message    string                `json:"message"`
	InstanceID string                `json:"instance_id"`
	Status     models.InstanceStatus `json:"status"`
}

type RecentInstancesResponse struct {
	TenantID  string                     `json:"tenant_id"`
	Count     int                        `json:"count"`
	Instances []*models.WorkflowInstance `json:"instances"`
}
