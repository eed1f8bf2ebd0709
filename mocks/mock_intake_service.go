package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medorders/internal/domain"
	"medorders/internal/service"
)

// MockIntakeService is a mock implementation of service.IntakeService.
type MockIntakeService struct {
	mock.Mock
}

func (m *MockIntakeService) Preview(ctx context.Context, doc domain.RawDocument) (*service.PreviewResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PreviewResult), args.Error(1)
}

func (m *MockIntakeService) Ingest(ctx context.Context, doc domain.RawDocument) (*domain.OrderPersistResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderPersistResult), args.Error(1)
}
