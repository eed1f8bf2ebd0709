package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"medorders/internal/domain"
	"medorders/internal/port"
	"medorders/internal/validator"
)

// StateObserver is told when persistence reaches a pipeline state. Returning
// an error aborts the transaction.
type StateObserver func(state domain.PipelineState) error

// Persister validates parsed order data and stores it in one transaction:
// resolve entities, check duplicates, insert the order.
type Persister struct {
	store    port.EntityStore
	resolver *Resolver
	detector *DuplicateDetector
	rules    *validator.Registry
	log      zerolog.Logger
}

// NewPersister creates a Persister.
func NewPersister(store port.EntityStore, resolver *Resolver, detector *DuplicateDetector, log zerolog.Logger) *Persister {
	return &Persister{
		store:    store,
		resolver: resolver,
		detector: detector,
		rules:    validator.NewPersistenceRegistry(),
		log:      log.With().Str("component", "persister").Logger(),
	}
}

// Validate runs the persistence rules and returns a *domain.ValidationError
// listing every failed error-severity rule.
func (p *Persister) Validate(ctx context.Context, data *domain.ParsedOrderData) error {
	report := p.rules.Run(ctx, data)
	if report.Valid() {
		return nil
	}
	return &domain.ValidationError{Fields: report.Errors()}
}

// Persist validates data and stores it. Nothing is written unless every step
// succeeds.
func (p *Persister) Persist(ctx context.Context, data *domain.ParsedOrderData, observe StateObserver) (*domain.OrderPersistResult, error) {
	if observe == nil {
		observe = func(domain.PipelineState) error { return nil }
	}
	if data == nil {
		return nil, fmt.Errorf("persister.Persist: %w", domain.ErrInvalidOrderInput)
	}
	if err := p.Validate(ctx, data); err != nil {
		return nil, err
	}
	if err := observe(domain.StateResolving); err != nil {
		return nil, err
	}

	var result *domain.OrderPersistResult
	err := p.store.WithTx(ctx, func(repo port.EntityRepository) error {
		patient, _, err := p.resolver.ResolvePatient(ctx, repo, data.Patient)
		if err != nil {
			return err
		}
		prescriber, _, err := p.resolver.ResolvePrescriber(ctx, repo, data.Prescriber)
		if err != nil {
			return err
		}
		lines, err := p.resolveDevices(ctx, repo, data.Devices)
		if err != nil {
			return err
		}
		if err := observe(domain.StateResolved); err != nil {
			return err
		}

		order := &domain.Order{
			PatientID:          patient.ID,
			PrescriberID:       prescriber.ID,
			ItemName:           data.ItemName,
			ItemQuantity:       data.ItemQuantity,
			OrderCostRaw:       data.OrderCostRaw,
			OrderCostToInsurer: data.OrderCostToInsurer,
			ReasonPrescribed:   data.ReasonPrescribed,
			Devices:            lines,
			Patient:            patient,
			Prescriber:         prescriber,
		}
		result, err = p.insertWithWarnings(ctx, repo, order, observe)
		return err
	})
	if err != nil {
		return nil, persistError("persister.Persist", err)
	}
	return result, nil
}

// resolveDevices resolves every distinct SKU once, in SKU order, so that
// concurrent orders claim device keys in the same order and cannot deadlock
// on each other's uncommitted inserts. Devices without a SKU never contend
// and are created afterwards. Lines keep document order.
func (p *Persister) resolveDevices(ctx context.Context, repo port.EntityRepository, parsed []domain.ParsedDevice) ([]domain.OrderDevice, error) {
	first := make(map[string]int, len(parsed))
	skus := make([]string, 0, len(parsed))
	for i := range parsed {
		sku := trimPtr(parsed[i].SKU)
		if sku == "" {
			continue
		}
		if _, seen := first[sku]; !seen {
			first[sku] = i
			skus = append(skus, sku)
		}
	}
	sort.Strings(skus)

	bySKU := make(map[string]*domain.Device, len(skus))
	for _, sku := range skus {
		dev, _, err := p.resolver.ResolveDevice(ctx, repo, &parsed[first[sku]])
		if err != nil {
			return nil, err
		}
		bySKU[sku] = dev
	}

	lines := make([]domain.OrderDevice, 0, len(parsed))
	for i := range parsed {
		dev := bySKU[trimPtr(parsed[i].SKU)]
		if dev == nil {
			var err error
			if dev, _, err = p.resolver.ResolveDevice(ctx, repo, &parsed[i]); err != nil {
				return nil, err
			}
		}
		lines = append(lines, domain.OrderDevice{DeviceID: dev.ID, Quantity: parsed[i].Quantity, Device: dev})
	}
	return mergeOrderDevices(lines), nil
}

// insertWithWarnings runs duplicate detection and inserts the order inside repo's
// transaction.
func (p *Persister) insertWithWarnings(ctx context.Context, repo port.EntityRepository, order *domain.Order, observe StateObserver) (*domain.OrderPersistResult, error) {
	warnings := p.detector.Detect(ctx, repo, candidateFor(order), order.PatientID, order.PrescriberID)
	if err := observe(domain.StateDuplicatesChecked); err != nil {
		return nil, err
	}
	if err := repo.InsertOrder(ctx, order); err != nil {
		return nil, err
	}
	p.log.Info().
		Int64("order_id", order.ID).
		Int64("patient_id", order.PatientID).
		Int64("prescriber_id", order.PrescriberID).
		Int("devices", len(order.Devices)).
		Int("duplicate_warnings", len(warnings)).
		Msg("order persisted")
	return &domain.OrderPersistResult{
		Order:             order,
		DuplicateWarnings: warnings,
		HasDuplicates:     len(warnings) > 0,
	}, nil
}

// candidateFor falls back to the first device name when the order has no
// item name.
func candidateFor(o *domain.Order) DuplicateCandidate {
	c := DuplicateCandidate{ItemName: o.ItemName, ItemQuantity: o.ItemQuantity}
	if (c.ItemName == nil || strings.TrimSpace(*c.ItemName) == "") && len(o.Devices) > 0 && o.Devices[0].Device != nil {
		name := o.Devices[0].Device.Name
		c.ItemName = &name
	}
	return c
}

// mergeOrderDevices collapses lines that resolved to the same device,
// summing quantities and keeping first-seen order.
func mergeOrderDevices(lines []domain.OrderDevice) []domain.OrderDevice {
	out := make([]domain.OrderDevice, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			l.Quantity = 1
		}
		if i, ok := index[l.DeviceID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.DeviceID] = len(out)
		out = append(out, l)
	}
	return out
}

// persistError keeps data-class errors as they are and marks everything
// else as a persistence failure.
func persistError(op string, err error) error {
	switch {
	case domain.Classify(err) == domain.ClassData,
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistenceFailed, err)
	}
}
