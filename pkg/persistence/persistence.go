// Package persistence provides the storage abstraction for workflow definitions and instances.
package persistence

import (
	"context"

	"github.com/dukex/tenantflow/pkg/models"
)

// Persistence groups the repositories the execution engine depends on.
type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	ExecutionStateRepository() ExecutionStateRepository
	StepHistoryRepository() StepHistoryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow definitions registered by tenants.
type DefinitionRepository interface {
	// Save creates or replaces a definition.
	Save(ctx context.Context, definition *models.WorkflowDefinition) error

	// GetByID returns ErrDefinitionNotFound when no definition has the id.
	GetByID(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error)

	// ListByTenant returns the tenant's definitions ordered by workflow id.
	ListByTenant(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error)
}

// InstanceRepository stores workflow instances. Instances are created once and
// afterwards only change through TransitionStatus.
type InstanceRepository interface {
	// Create returns ErrInstanceAlreadyExists when the id is taken.
	Create(ctx context.Context, instance *models.WorkflowInstance) error

	// GetByID returns ErrInstanceNotFound when the instance does not exist
	// or belongs to another tenant.
	GetByID(ctx context.Context, instanceID, tenantID string) (*models.WorkflowInstance, error)

	// TransitionStatus atomically moves an instance from one status to
	// another. It fails with a StatusConflictError when the stored status is
	// not from, and with ErrInvalidTransition when the move is not allowed.
	// Terminal statuses set completed_at; FAILED records errorMessage.
	TransitionStatus(
		ctx context.Context,
		instanceID string,
		from, to models.InstanceStatus,
		errorMessage string,
	) (*models.WorkflowInstance, error)

	// ListByTenant returns the newest instances of a tenant first.
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*models.WorkflowInstance, error)

	// ListByStatus returns all instances currently in the given status.
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error)
}

// ExecutionStateRepository stores the working memory of instances.
type ExecutionStateRepository interface {
	// Save creates or replaces the state of an instance and stamps UpdatedAt.
	Save(ctx context.Context, state *models.ExecutionState) error

	// GetByInstanceID returns ErrExecutionStateNotFound when no state exists.
	GetByInstanceID(ctx context.Context, instanceID string) (*models.ExecutionState, error)
}

// StepHistoryRepository stores the append-only audit trail of step executions.
type StepHistoryRepository interface {
	// Append records a new entry, assigning an id when empty.
	Append(ctx context.Context, entry *models.StepHistoryEntry) error

	// Finish closes a STARTED entry with its final status, output and error.
	// Closed entries are immutable and return ErrHistoryEntryClosed.
	Finish(ctx context.Context, entry *models.StepHistoryEntry) error

	// ListByInstance returns the entries of an instance by start time ascending.
	ListByInstance(ctx context.Context, instanceID string) ([]*models.StepHistoryEntry, error)
}
