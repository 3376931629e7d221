package mocks

import (
	"context"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockDefinitionRepository is a mock implementation of persistence.DefinitionRepository interface.
type MockDefinitionRepository struct {
	mock.Mock
}

func (m *MockDefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	args := m.Called(ctx, definition)

	return args.Error(0)
}

func (m *MockDefinitionRepository) GetByID(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockDefinitionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository interface.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, instanceID, tenantID string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, instanceID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) TransitionStatus(
	ctx context.Context,
	instanceID string,
	from, to models.InstanceStatus,
	errorMessage string,
) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, instanceID, from, to, errorMessage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

// MockExecutionStateRepository is a mock implementation of persistence.ExecutionStateRepository interface.
type MockExecutionStateRepository struct {
	mock.Mock
}

func (m *MockExecutionStateRepository) Save(ctx context.Context, state *models.ExecutionState) error {
	args := m.Called(ctx, state)

	return args.Error(0)
}

func (m *MockExecutionStateRepository) GetByInstanceID(ctx context.Context, instanceID string) (*models.ExecutionState, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionState), args.Error(1)
}

// MockStepHistoryRepository is a mock implementation of persistence.StepHistoryRepository interface.
type MockStepHistoryRepository struct {
	mock.Mock
}

func (m *MockStepHistoryRepository) Append(ctx context.Context, entry *models.StepHistoryEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockStepHistoryRepository) Finish(ctx context.Context, entry *models.StepHistoryEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockStepHistoryRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.StepHistoryEntry, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepHistoryEntry), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	definitionRepo *MockDefinitionRepository
	instanceRepo   *MockInstanceRepository
	stateRepo      *MockExecutionStateRepository
	historyRepo    *MockStepHistoryRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		definitionRepo: &MockDefinitionRepository{},
		instanceRepo:   &MockInstanceRepository{},
		stateRepo:      &MockExecutionStateRepository{},
		historyRepo:    &MockStepHistoryRepository{},
	}
}

func (m *MockPersistence) GetMockDefinitionRepository() *MockDefinitionRepository {
	return m.definitionRepo
}

func (m *MockPersistence) GetMockInstanceRepository() *MockInstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) GetMockExecutionStateRepository() *MockExecutionStateRepository {
	return m.stateRepo
}

func (m *MockPersistence) GetMockStepHistoryRepository() *MockStepHistoryRepository {
	return m.historyRepo
}

func (m *MockPersistence) DefinitionRepository() persistence.DefinitionRepository {
	return m.definitionRepo
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) ExecutionStateRepository() persistence.ExecutionStateRepository {
	return m.stateRepo
}

func (m *MockPersistence) StepHistoryRepository() persistence.StepHistoryRepository {
	return m.historyRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
