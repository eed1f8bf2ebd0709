package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medorders/internal/config"
	"medorders/internal/domain"
	"medorders/internal/port"
)

// DuplicateCandidate is the part of a new order compared against history.
type DuplicateCandidate struct {
	ItemName     *string
	ItemQuantity *int
}

// DuplicateDetector flags existing orders for the same patient and
// prescriber that look like the candidate. Its output is advisory.
type DuplicateDetector struct {
	cfg config.DuplicateConfig
	now func() time.Time
	log zerolog.Logger
}

// NewDuplicateDetector creates a detector with the configured weights.
func NewDuplicateDetector(cfg config.DuplicateConfig, log zerolog.Logger) *DuplicateDetector {
	return &DuplicateDetector{
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("component", "duplicate_detector").Logger(),
	}
}

// Detect never fails: a history read error is logged and yields no warnings.
func (d *DuplicateDetector) Detect(
	ctx context.Context,
	repo port.OrderHistoryReader,
	candidate DuplicateCandidate,
	patientID, prescriberID int64,
) []domain.DuplicateWarning {
	warnings := []domain.DuplicateWarning{}

	q := port.OrderHistoryQuery{PatientID: patientID, PrescriberID: prescriberID}
	if d.cfg.LookbackHours > 0 {
		q.Since = d.now().Add(-time.Duration(d.cfg.LookbackHours) * time.Hour)
	}
	history, err := repo.ListOrdersForPair(ctx, q)
	if err != nil {
		d.log.Warn().Err(err).
			Int64("patient_id", patientID).
			Int64("prescriber_id", prescriberID).
			Msg("duplicate check skipped")
		return warnings
	}

	type match struct {
		warning domain.DuplicateWarning
		exact   bool
	}
	name := normalizeItemName(candidate.ItemName)
	matches := make([]match, 0, len(history))
	for _, existing := range history {
		score, reasons, exact := d.score(name, candidate.ItemQuantity, existing)
		if !exact && score < d.cfg.MinScore {
			continue
		}
		matches = append(matches, match{exact: exact, warning: domain.DuplicateWarning{
			OrderID:          existing.ID,
			ItemName:         existing.ItemName,
			ItemQuantity:     existing.ItemQuantity,
			ReasonPrescribed: existing.ReasonPrescribed,
			CreatedAt:        existing.CreatedAt,
			SimilarityScore:  score,
			Reasons:          reasons,
		}})
	}

	// Exact name matches rank first so the result cap never hides them.
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.warning.SimilarityScore != b.warning.SimilarityScore {
			return a.warning.SimilarityScore > b.warning.SimilarityScore
		}
		return a.warning.CreatedAt.After(b.warning.CreatedAt)
	})
	limit := len(matches)
	if d.cfg.MaxResults > 0 && limit > d.cfg.MaxResults {
		limit = d.cfg.MaxResults
		for limit < len(matches) && matches[limit].exact {
			limit++
		}
	}
	for _, m := range matches[:limit] {
		warnings = append(warnings, m.warning)
	}
	if len(warnings) > 0 {
		d.log.Info().
			Int64("patient_id", patientID).
			Int64("prescriber_id", prescriberID).
			Int("warnings", len(warnings)).
			Msg("possible duplicate orders")
	}
	return warnings
}

func (d *DuplicateDetector) score(name string, quantity *int, existing domain.Order) (int, []string, bool) {
	score := 0
	reasons := []string{}
	exact := false

	if other := normalizeItemName(existing.ItemName); name != "" && other != "" {
		switch {
		case name == other:
			score += d.cfg.ExactWeight
			reasons = append(reasons, domain.ReasonExactItemName)
			exact = true
		case strings.Contains(name, other) || strings.Contains(other, name):
			score += d.cfg.PartialWeight
			reasons = append(reasons, domain.ReasonSimilarItemName)
		}
	}
	if quantity != nil && existing.ItemQuantity != nil && *quantity == *existing.ItemQuantity {
		score += d.cfg.QuantityWeight
		reasons = append(reasons, domain.ReasonQuantityMatch)
	}
	return score, reasons, exact
}

func normalizeItemName(s *string) string {
	if s == nil {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToLower(*s)), " ")
}
