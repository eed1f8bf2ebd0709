package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medorders/internal/domain"
	"medorders/internal/service"
)

// MockOrderService is a mock implementation of service.OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, input *service.CreateOrderInput) (*domain.OrderPersistResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderPersistResult), args.Error(1)
}

func (m *MockOrderService) Persist(ctx context.Context, data *domain.ParsedOrderData) (*domain.OrderPersistResult, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderPersistResult), args.Error(1)
}

func (m *MockOrderService) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderService) List(ctx context.Context, offset, limit int) ([]domain.Order, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}
