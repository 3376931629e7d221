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

// DefinitionRepository handles workflow definition database operations.
type DefinitionRepository struct {
	db *sql.DB
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

// Save creates or replaces a definition.
func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	now := time.Now().UTC()
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	stepsJSON, err := json.Marshal(definition.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (workflow_id, tenant_id, name, description, version, status, steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.WorkflowID,
		definition.TenantID,
		definition.Name,
		definition.Description,
		definition.Version,
		definition.Status,
		stepsJSON,
		definition.CreatedAt,
		definition.UpdatedAt,
	)
	if err != nil {
		return persistence.NewDefinitionError("Save", definition.WorkflowID, definition.TenantID, err)
	}

	return nil
}

// GetByID retrieves a definition by its workflow id.
func (r *DefinitionRepository) GetByID(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT workflow_id, tenant_id, name, description, version, status, steps, created_at, updated_at
		FROM workflow_definitions
		WHERE workflow_id = $1
	`

	definition, err := scanDefinition(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDefinitionError("GetByID", workflowID, "", persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("GetByID", workflowID, "", err)
	}

	return definition, nil
}

// ListByTenant returns the tenant's definitions ordered by workflow id.
func (r *DefinitionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT workflow_id, tenant_id, name, description, version, status, steps, created_at, updated_at
		FROM workflow_definitions
		WHERE tenant_id = $1
		ORDER BY workflow_id
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() { _ = rows.Close() }()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate definitions: %w", err)
	}

	return definitions, nil
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		definition models.WorkflowDefinition
		stepsJSON  []byte
	)

	err := row.Scan(
		&definition.WorkflowID,
		&definition.TenantID,
		&definition.Name,
		&definition.Description,
		&definition.Version,
		&definition.Status,
		&stepsJSON,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(stepsJSON, &definition.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	return &definition, nil
}
