package mocks

import (
	"context"

	"github.com/dukex/tenantflow/pkg/integration"
	"github.com/dukex/tenantflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of integration.Gateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Call(ctx context.Context, request *integration.Request) (*integration.Response, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*integration.Response), args.Error(1)
}

// MockNotifier is a mock implementation of integration.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, notification *integration.Notification) (*integration.Receipt, error) {
	args := m.Called(ctx, notification)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*integration.Receipt), args.Error(1)
}

// MockDefinitionProvider is a mock implementation of definitions.Provider interface.
type MockDefinitionProvider struct {
	mock.Mock
}

func (m *MockDefinitionProvider) GetDefinition(ctx context.Context, workflowID, tenantID string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, workflowID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}
