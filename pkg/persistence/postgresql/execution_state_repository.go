package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
)

// ExecutionStateRepository handles execution state database operations.
type ExecutionStateRepository struct {
	db *sql.DB
}

// NewExecutionStateRepository creates a new execution state repository.
func NewExecutionStateRepository(db *sql.DB) *ExecutionStateRepository {
	return &ExecutionStateRepository{db: db}
}

// Save upserts the state of an instance.
func (r *ExecutionStateRepository) Save(ctx context.Context, state *models.ExecutionState) error {
	if state.Variables == nil {
		state.Variables = map[string]any{}
	}

	state.UpdatedAt = time.Now().UTC()

	variablesJSON, err := json.Marshal(state.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	query := `
		INSERT INTO workflow_state (instance_id, current_step, variables, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, state.InstanceID, state.CurrentStep, variablesJSON, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save execution state: %w", err)
	}

	return nil
}

// GetByInstanceID retrieves the state of an instance.
func (r *ExecutionStateRepository) GetByInstanceID(ctx context.Context, instanceID string) (*models.ExecutionState, error) {
	query := `
		SELECT instance_id, current_step, variables, updated_at
		FROM workflow_state
		WHERE instance_id = $1
	`

	var (
		state         models.ExecutionState
		variablesJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(
		&state.InstanceID,
		&state.CurrentStep,
		&variablesJSON,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrExecutionStateNotFound, instanceID)
		}

		return nil, fmt.Errorf("failed to get execution state: %w", err)
	}

	err = json.Unmarshal(variablesJSON, &state.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	return &state, nil
}
