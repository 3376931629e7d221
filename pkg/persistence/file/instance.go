package file

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
)

// InstanceRepository handles workflow instance file operations.
type InstanceRepository struct {
	store *store
}

// Create writes a new instance.
func (ir *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	if err := validateID(instance.InstanceID); err != nil {
		return persistence.NewInstanceError("Create", instance.InstanceID, err)
	}

	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	if _, err := os.Stat(ir.store.path(instancesDir, instance.InstanceID)); err == nil {
		return persistence.NewInstanceError("Create", instance.InstanceID, persistence.ErrInstanceAlreadyExists)
	}

	if instance.TriggerData == nil {
		instance.TriggerData = map[string]any{}
	}

	return ir.store.write(instancesDir, instance.InstanceID, instance)
}

// GetByID reads an instance owned by the tenant.
func (ir *InstanceRepository) GetByID(_ context.Context, instanceID, tenantID string) (*models.WorkflowInstance, error) {
	if err := validateID(instanceID); err != nil {
		return nil, persistence.NewInstanceError("GetByID", instanceID, err)
	}

	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	instance, err := ir.load(instanceID)
	if err != nil {
		return nil, persistence.NewInstanceError("GetByID", instanceID, err)
	}

	if instance.TenantID != tenantID {
		return nil, persistence.NewInstanceError("GetByID", instanceID, persistence.ErrInstanceNotFound)
	}

	return instance, nil
}

// TransitionStatus performs the status compare-and-swap under the store lock.
func (ir *InstanceRepository) TransitionStatus(
	_ context.Context,
	instanceID string,
	from, to models.InstanceStatus,
	errorMessage string,
) (*models.WorkflowInstance, error) {
	if err := persistence.ValidateTransition(instanceID, from, to); err != nil {
		return nil, err
	}

	if err := validateID(instanceID); err != nil {
		return nil, persistence.NewInstanceError("TransitionStatus", instanceID, err)
	}

	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	instance, err := ir.load(instanceID)
	if err != nil {
		return nil, persistence.NewInstanceError("TransitionStatus", instanceID, err)
	}

	if instance.Status != from {
		return nil, persistence.NewInstanceError("TransitionStatus", instanceID,
			persistence.NewStatusConflictError(instanceID, from, instance.Status))
	}

	instance.Status = to

	if to.IsTerminal() {
		now := time.Now().UTC()
		instance.CompletedAt = &now
	}

	if to == models.InstanceStatusFailed {
		instance.ErrorMessage = errorMessage
	}

	if err := ir.store.write(instancesDir, instanceID, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// ListByTenant returns the newest instances of a tenant first.
func (ir *InstanceRepository) ListByTenant(_ context.Context, tenantID string, limit int) ([]*models.WorkflowInstance, error) {
	instances, err := ir.filter(func(instance *models.WorkflowInstance) bool {
		return instance.TenantID == tenantID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].StartedAt.After(instances[j].StartedAt)
	})

	if limit > 0 && len(instances) > limit {
		instances = instances[:limit]
	}

	return instances, nil
}

// ListByStatus returns all instances currently in the given status.
func (ir *InstanceRepository) ListByStatus(_ context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	instances, err := ir.filter(func(instance *models.WorkflowInstance) bool {
		return instance.Status == status
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].StartedAt.Before(instances[j].StartedAt)
	})

	return instances, nil
}

func (ir *InstanceRepository) filter(keep func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	ids, err := ir.store.ids(instancesDir)
	if err != nil {
		return nil, err
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, id := range ids {
		instance, err := ir.load(id)
		if err != nil {
			// Skip invalid files
			continue
		}

		if keep(instance) {
			instances = append(instances, instance)
		}
	}

	return instances, nil
}

func (ir *InstanceRepository) load(instanceID string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := ir.store.read(instancesDir, instanceID, &instance)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, err
	}

	return &instance, nil
}
