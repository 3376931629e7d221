// Package models defines the core domain models for tenant-scoped workflow execution.
package models

import (
	"time"
)

// DefinitionStatus represents the approval state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft           DefinitionStatus = "DRAFT"
	DefinitionStatusPendingApproval DefinitionStatus = "PENDING_APPROVAL"
	DefinitionStatusApproved        DefinitionStatus = "APPROVED" // Only executable status
	DefinitionStatusRejected        DefinitionStatus = "REJECTED"
)

// WorkflowDefinition is the static, tenant-owned step graph of a workflow.
type WorkflowDefinition struct {
	WorkflowID  string           `json:"workflow_id" validate:"required"`
	TenantID    string           `json:"tenant_id"   validate:"required"`
	Name        string           `json:"name"        validate:"required"`
	Description string           `json:"description,omitempty"`
	Version     int              `json:"version,omitempty"`
	Status      DefinitionStatus `json:"status"      validate:"required,oneof=DRAFT PENDING_APPROVAL APPROVED REJECTED"`
	Steps       []*Step          `json:"steps"       validate:"required,min=1,dive"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Executable reports whether instances may be started from the definition.
func (d *WorkflowDefinition) Executable() bool {
	return d.Status == DefinitionStatusApproved
}

// OwnedBy reports whether the definition belongs to the given tenant.
func (d *WorkflowDefinition) OwnedBy(tenantID string) bool {
	return d.TenantID == tenantID
}
