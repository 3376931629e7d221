// Package definitions loads executable workflow definitions for the engine.
package definitions

import (
	"context"
	"fmt"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
)

// Provider returns the APPROVED definition of a workflow owned by the tenant.
// Any other definition, including one owned by another tenant, is reported
// as persistence.ErrDefinitionNotFound.
type Provider interface {
	GetDefinition(ctx context.Context, workflowID, tenantID string) (*models.WorkflowDefinition, error)
}

// checkAccess hides definitions of other tenants and those not yet approved.
func checkAccess(definition *models.WorkflowDefinition, workflowID, tenantID string) error {
	if !definition.OwnedBy(tenantID) {
		return persistence.NewDefinitionError("GetDefinition", workflowID, tenantID, persistence.ErrDefinitionNotFound)
	}

	if !definition.Executable() {
		return persistence.NewDefinitionError("GetDefinition", workflowID, tenantID,
			fmt.Errorf("%w: status is %s", persistence.ErrDefinitionNotFound, definition.Status))
	}

	return nil
}

// RepositoryProvider reads definitions from the local definition store.
type RepositoryProvider struct {
	repository persistence.DefinitionRepository
}

func NewRepositoryProvider(repository persistence.DefinitionRepository) *RepositoryProvider {
	return &RepositoryProvider{repository: repository}
}

func (p *RepositoryProvider) GetDefinition(ctx context.Context, workflowID, tenantID string) (*models.WorkflowDefinition, error) {
	definition, err := p.repository.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := checkAccess(definition, workflowID, tenantID); err != nil {
		return nil, err
	}

	return definition, nil
}
