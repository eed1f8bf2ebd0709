package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medorders/internal/domain"
	"medorders/internal/port"
)

// MockOrderHistoryReader is a mock implementation of port.OrderHistoryReader.
type MockOrderHistoryReader struct {
	mock.Mock
}

func (m *MockOrderHistoryReader) ListOrdersForPair(ctx context.Context, q port.OrderHistoryQuery) ([]domain.Order, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}
