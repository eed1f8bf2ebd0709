package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medorders/internal/domain"
)

// MockOrderExtractor is a mock implementation of port.OrderExtractor.
type MockOrderExtractor struct {
	mock.Mock
}

func (m *MockOrderExtractor) Extract(ctx context.Context, text string) (*domain.ParsedOrderData, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParsedOrderData), args.Error(1)
}
