package definitions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
)

const registryTimeout = 5 * time.Second

// registryWorkflow is the workflow document served by the workflow registry.
type registryWorkflow struct {
	WorkflowID  string                  `json:"workflow_id"`
	TenantID    string                  `json:"tenant_id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Version     int                     `json:"version"`
	Status      models.DefinitionStatus `json:"status"`
	StepsJSON   struct {
		Steps []*models.Step `json:"steps"`
	} `json:"steps_json"`
}

// HTTPProvider fetches definitions from the workflow registry service.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPProvider(logger *slog.Logger, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: registryTimeout},
		logger:  logger.With("module", "definition_provider"),
	}
}

func (p *HTTPProvider) GetDefinition(ctx context.Context, workflowID, tenantID string) (*models.WorkflowDefinition, error) {
	endpoint := p.baseURL + "/api/workflows/" + url.PathEscape(workflowID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry request: %w", err)
	}

	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, persistence.NewDefinitionError("GetDefinition", workflowID, tenantID, persistence.ErrDefinitionNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workflow registry returned status %d for %s", resp.StatusCode, workflowID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	var envelope struct {
		Workflow json.RawMessage `json:"workflow"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	if len(envelope.Workflow) == 0 || string(envelope.Workflow) == "null" {
		return nil, persistence.NewDefinitionError("GetDefinition", workflowID, tenantID, persistence.ErrDefinitionNotFound)
	}

	definition, err := decodeRegistryWorkflow(envelope.Workflow)
	if err != nil {
		p.logger.WarnContext(ctx, "rejected workflow definition", "workflow_id", workflowID, "error", err)

		return nil, err
	}

	if err := checkAccess(definition, workflowID, tenantID); err != nil {
		return nil, err
	}

	return definition, nil
}

func decodeRegistryWorkflow(document []byte) (*models.WorkflowDefinition, error) {
	if err := ValidateDocument(document); err != nil {
		return nil, err
	}

	var workflow registryWorkflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return &models.WorkflowDefinition{
		WorkflowID:  workflow.WorkflowID,
		TenantID:    workflow.TenantID,
		Name:        workflow.Name,
		Description: workflow.Description,
		Version:     workflow.Version,
		Status:      workflow.Status,
		Steps:       workflow.StepsJSON.Steps,
	}, nil
}
