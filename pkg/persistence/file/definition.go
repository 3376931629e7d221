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

// DefinitionRepository handles workflow definition file operations.
type DefinitionRepository struct {
	store *store
}

// Save writes a definition, stamping its timestamps.
func (dr *DefinitionRepository) Save(_ context.Context, definition *models.WorkflowDefinition) error {
	if err := validateID(definition.WorkflowID); err != nil {
		return persistence.NewDefinitionError("Save", definition.WorkflowID, definition.TenantID, err)
	}

	now := time.Now().UTC()
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	dr.store.mu.Lock()
	defer dr.store.mu.Unlock()

	return dr.store.write(definitionsDir, definition.WorkflowID, definition)
}

// GetByID reads a definition by its workflow id.
func (dr *DefinitionRepository) GetByID(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	if err := validateID(workflowID); err != nil {
		return nil, persistence.NewDefinitionError("GetByID", workflowID, "", err)
	}

	dr.store.mu.Lock()
	defer dr.store.mu.Unlock()

	var definition models.WorkflowDefinition

	err := dr.store.read(definitionsDir, workflowID, &definition)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewDefinitionError("GetByID", workflowID, "", persistence.ErrDefinitionNotFound)
		}

		return nil, err
	}

	return &definition, nil
}

// ListByTenant returns the tenant's definitions ordered by workflow id.
func (dr *DefinitionRepository) ListByTenant(_ context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	dr.store.mu.Lock()
	defer dr.store.mu.Unlock()

	ids, err := dr.store.ids(definitionsDir)
	if err != nil {
		return nil, err
	}

	definitions := make([]*models.WorkflowDefinition, 0)

	for _, id := range ids {
		var definition models.WorkflowDefinition
		if err := dr.store.read(definitionsDir, id, &definition); err != nil {
			// Skip invalid files
			continue
		}

		if definition.TenantID == tenantID {
			definitions = append(definitions, &definition)
		}
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].WorkflowID < definitions[j].WorkflowID
	})

	return definitions, nil
}
