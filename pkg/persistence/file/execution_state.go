package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
)

// ExecutionStateRepository handles execution state file operations.
type ExecutionStateRepository struct {
	store *store
}

// Save replaces the execution state of an instance.
func (sr *ExecutionStateRepository) Save(_ context.Context, state *models.ExecutionState) error {
	if err := validateID(state.InstanceID); err != nil {
		return fmt.Errorf("invalid instance ID: %w", err)
	}

	stateToSave := *state
	if stateToSave.Variables == nil {
		stateToSave.Variables = make(map[string]any)
	}

	stateToSave.UpdatedAt = time.Now().UTC()

	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	if err := sr.store.write(executionStatesDir, state.InstanceID, stateToSave); err != nil {
		return err
	}

	state.UpdatedAt = stateToSave.UpdatedAt

	return nil
}

// GetByInstanceID reads the execution state of an instance.
func (sr *ExecutionStateRepository) GetByInstanceID(_ context.Context, instanceID string) (*models.ExecutionState, error) {
	if err := validateID(instanceID); err != nil {
		return nil, fmt.Errorf("invalid instance ID: %w", err)
	}

	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	var state models.ExecutionState

	err := sr.store.read(executionStatesDir, instanceID, &state)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewInstanceError("GetExecutionState", instanceID, persistence.ErrExecutionStateNotFound)
		}

		return nil, err
	}

	return &state, nil
}
