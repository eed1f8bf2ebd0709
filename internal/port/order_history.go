package port

import (
	"context"
	"time"

	"medorders/internal/domain"
)

// OrderHistoryQuery selects prior orders for one patient and prescriber.
// A zero Since means no lower bound on creation time.
type OrderHistoryQuery struct {
	PatientID    int64
	PrescriberID int64
	Since        time.Time
}

// OrderHistoryReader lists prior orders that duplicate detection compares against.
type OrderHistoryReader interface {
	ListOrdersForPair(ctx context.Context, q OrderHistoryQuery) ([]domain.Order, error)
}
