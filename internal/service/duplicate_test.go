package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medorders/internal/domain"
	"medorders/internal/port"
	"medorders/internal/service"
	"medorders/mocks"
)

var dupBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func historyOrder(id int64, name string, qty int, age time.Duration) domain.Order {
	return domain.Order{
		ID:           id,
		PatientID:    1,
		PrescriberID: 2,
		ItemName:     strPtr(name),
		ItemQuantity: intPtr(qty),
		CreatedAt:    dupBase.Add(-age),
	}
}

func detectWith(t *testing.T, history []domain.Order, candidate service.DuplicateCandidate) []domain.DuplicateWarning {
	t.Helper()
	reader := new(mocks.MockOrderHistoryReader)
	reader.On("ListOrdersForPair", mock.Anything, port.OrderHistoryQuery{PatientID: 1, PrescriberID: 2}).
		Return(history, nil)
	d := service.NewDuplicateDetector(testDuplicateConfig(), zerolog.Nop())
	warnings := d.Detect(context.Background(), reader, candidate, 1, 2)
	reader.AssertExpectations(t)
	return warnings
}

func TestDuplicateDetector_ExactNameMatch(t *testing.T) {
	warnings := detectWith(t,
		[]domain.Order{historyOrder(10, "Wheelchair", 1, time.Hour)},
		service.DuplicateCandidate{ItemName: strPtr("  wheelchair "), ItemQuantity: intPtr(1)},
	)

	require.Len(t, warnings, 1)
	assert.Equal(t, int64(10), warnings[0].OrderID)
	assert.Equal(t, 4, warnings[0].SimilarityScore)
	assert.Equal(t, []string{domain.ReasonExactItemName, domain.ReasonQuantityMatch}, warnings[0].Reasons)
}

func TestDuplicateDetector_SimilarName(t *testing.T) {
	warnings := detectWith(t,
		[]domain.Order{historyOrder(10, "Standard Wheelchair", 2, time.Hour)},
		service.DuplicateCandidate{ItemName: strPtr("wheelchair"), ItemQuantity: intPtr(1)},
	)

	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].SimilarityScore)
	assert.Equal(t, []string{domain.ReasonSimilarItemName}, warnings[0].Reasons)
}

func TestDuplicateDetector_QuantityAloneIsBelowThreshold(t *testing.T) {
	warnings := detectWith(t,
		[]domain.Order{historyOrder(10, "Walker", 1, time.Hour)},
		service.DuplicateCandidate{ItemName: strPtr("Wheelchair"), ItemQuantity: intPtr(1)},
	)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestDuplicateDetector_ExactMatchAlwaysSurfaces(t *testing.T) {
	cfg := testDuplicateConfig()
	cfg.MinScore = 100
	reader := new(mocks.MockOrderHistoryReader)
	reader.On("ListOrdersForPair", mock.Anything, mock.Anything).
		Return([]domain.Order{historyOrder(10, "Wheelchair", 3, time.Hour), historyOrder(11, "Standard Wheelchair", 3, time.Hour)}, nil)

	d := service.NewDuplicateDetector(cfg, zerolog.Nop())
	warnings := d.Detect(context.Background(), reader, service.DuplicateCandidate{ItemName: strPtr("Wheelchair")}, 1, 2)

	require.Len(t, warnings, 1)
	assert.Equal(t, int64(10), warnings[0].OrderID)
}

func TestDuplicateDetector_OrderingAndLimit(t *testing.T) {
	history := []domain.Order{
		historyOrder(1, "Standard Wheelchair", 9, 5*time.Hour),
		historyOrder(2, "Wheelchair", 9, 4*time.Hour),
		historyOrder(3, "Wheelchair", 1, 3*time.Hour),
		historyOrder(4, "Wheelchair", 9, 2*time.Hour),
		historyOrder(5, "Standard Wheelchair", 1, time.Hour),
		historyOrder(6, "Wheelchair", 1, 30*time.Minute),
		historyOrder(7, "Wheelchair Cushion", 9, 10*time.Minute),
	}
	warnings := detectWith(t, history, service.DuplicateCandidate{ItemName: strPtr("wheelchair"), ItemQuantity: intPtr(1)})

	require.Len(t, warnings, 5)
	ids := make([]int64, len(warnings))
	for i, w := range warnings {
		ids[i] = w.OrderID
	}
	// Exact name matches by score then age, then the rest by score.
	assert.Equal(t, []int64{6, 3, 4, 2, 5}, ids)
}

func TestDuplicateDetector_ExactMatchSurvivesLimit(t *testing.T) {
	history := []domain.Order{historyOrder(1, "Wheelchair", 2, 48*time.Hour)}
	for i := int64(2); i <= 7; i++ {
		history = append(history, historyOrder(i, "Wheelchair Deluxe", 1, time.Duration(i)*time.Minute))
	}
	warnings := detectWith(t, history, service.DuplicateCandidate{ItemName: strPtr("Wheelchair"), ItemQuantity: intPtr(1)})

	require.Len(t, warnings, 5)
	assert.Equal(t, int64(1), warnings[0].OrderID)
	assert.Equal(t, []string{domain.ReasonExactItemName}, warnings[0].Reasons)
	for _, w := range warnings[1:] {
		assert.Equal(t, []string{domain.ReasonSimilarItemName, domain.ReasonQuantityMatch}, w.Reasons)
	}
}

func TestDuplicateDetector_AllExactMatchesKeptPastLimit(t *testing.T) {
	var history []domain.Order
	for i := int64(1); i <= 7; i++ {
		history = append(history, historyOrder(i, "Wheelchair", 9, time.Duration(i)*time.Hour))
	}
	history = append(history, historyOrder(8, "Wheelchair Deluxe", 1, time.Minute))
	warnings := detectWith(t, history, service.DuplicateCandidate{ItemName: strPtr("wheelchair"), ItemQuantity: intPtr(1)})

	require.Len(t, warnings, 7)
	for _, w := range warnings {
		assert.Contains(t, w.Reasons, domain.ReasonExactItemName)
	}
}

func TestDuplicateDetector_NoItemName(t *testing.T) {
	warnings := detectWith(t,
		[]domain.Order{historyOrder(10, "Wheelchair", 1, time.Hour)},
		service.DuplicateCandidate{ItemQuantity: intPtr(1)},
	)
	assert.Empty(t, warnings)
}

func TestDuplicateDetector_ReaderErrorYieldsNoWarnings(t *testing.T) {
	reader := new(mocks.MockOrderHistoryReader)
	reader.On("ListOrdersForPair", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	d := service.NewDuplicateDetector(testDuplicateConfig(), zerolog.Nop())
	warnings := d.Detect(context.Background(), reader, service.DuplicateCandidate{ItemName: strPtr("Wheelchair")}, 1, 2)

	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestDuplicateDetector_Lookback(t *testing.T) {
	cfg := testDuplicateConfig()
	cfg.LookbackHours = 24
	reader := new(mocks.MockOrderHistoryReader)
	reader.On("ListOrdersForPair", mock.Anything, mock.MatchedBy(func(q port.OrderHistoryQuery) bool {
		return !q.Since.IsZero() && time.Since(q.Since) > 23*time.Hour && time.Since(q.Since) < 25*time.Hour
	})).Return([]domain.Order{}, nil)

	d := service.NewDuplicateDetector(cfg, zerolog.Nop())
	d.Detect(context.Background(), reader, service.DuplicateCandidate{ItemName: strPtr("Wheelchair")}, 1, 2)

	reader.AssertExpectations(t)
}
