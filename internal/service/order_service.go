package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medorders/internal/domain"
	"medorders/internal/port"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// OrderDeviceRef references an existing device by ID.
type OrderDeviceRef struct {
	DeviceID int64 `json:"device_id"`
	Quantity int   `json:"quantity"`
}

// CreateOrderInput is the DTO for creating an order directly. Each party is
// given either as an existing ID or as data to resolve, never both.
type CreateOrderInput struct {
	PatientID          *int64
	Patient            *domain.ParsedPatient
	PrescriberID       *int64
	Prescriber         *domain.ParsedPrescriber
	DeviceIDs          []OrderDeviceRef
	Devices            []domain.ParsedDevice
	ItemName           *string
	ItemQuantity       *int
	OrderCostRaw       *int64
	OrderCostToInsurer *int64
	ReasonPrescribed   *string
}

// OrderService defines the order management contract.
type OrderService interface {
	Create(ctx context.Context, input *CreateOrderInput) (*domain.OrderPersistResult, error)
	Persist(ctx context.Context, data *domain.ParsedOrderData) (*domain.OrderPersistResult, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, offset, limit int) ([]domain.Order, int, error)
}

type orderService struct {
	store     port.EntityStore
	persister *Persister
	log       zerolog.Logger
}

// NewOrderService creates a new OrderService implementation.
func NewOrderService(store port.EntityStore, persister *Persister, log zerolog.Logger) OrderService {
	return &orderService{
		store:     store,
		persister: persister,
		log:       log.With().Str("component", "order_service").Logger(),
	}
}

// Persist stores reviewed preview data.
func (s *orderService) Persist(ctx context.Context, data *domain.ParsedOrderData) (*domain.OrderPersistResult, error) {
	result, err := s.persister.Persist(ctx, data, nil)
	if err != nil {
		return nil, fmt.Errorf("orderService.Persist: %w", err)
	}
	return result, nil
}

func (s *orderService) Create(ctx context.Context, input *CreateOrderInput) (*domain.OrderPersistResult, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, fmt.Errorf("orderService.Create: %w", err)
	}

	var result *domain.OrderPersistResult
	err := s.store.WithTx(ctx, func(repo port.EntityRepository) error {
		patient, err := s.patientFor(ctx, repo, input)
		if err != nil {
			return err
		}
		prescriber, err := s.prescriberFor(ctx, repo, input)
		if err != nil {
			return err
		}
		lines, err := s.devicesFor(ctx, repo, input)
		if err != nil {
			return err
		}

		order := &domain.Order{
			PatientID:          patient.ID,
			PrescriberID:       prescriber.ID,
			ItemName:           input.ItemName,
			ItemQuantity:       input.ItemQuantity,
			OrderCostRaw:       input.OrderCostRaw,
			OrderCostToInsurer: input.OrderCostToInsurer,
			ReasonPrescribed:   input.ReasonPrescribed,
			Devices:            mergeOrderDevices(lines),
			Patient:            patient,
			Prescriber:         prescriber,
		}
		result, err = s.persister.insertWithWarnings(ctx, repo, order, func(domain.PipelineState) error { return nil })
		return err
	})
	if err != nil {
		return nil, persistError("orderService.Create", err)
	}
	return result, nil
}

func (s *orderService) patientFor(ctx context.Context, repo port.EntityRepository, input *CreateOrderInput) (*domain.Patient, error) {
	if input.PatientID != nil {
		p, err := repo.GetPatient(ctx, *input.PatientID)
		return p, referenced("patient", *input.PatientID, err)
	}
	p, _, err := s.persister.resolver.ResolvePatient(ctx, repo, input.Patient)
	return p, err
}

func (s *orderService) prescriberFor(ctx context.Context, repo port.EntityRepository, input *CreateOrderInput) (*domain.Prescriber, error) {
	if input.PrescriberID != nil {
		p, err := repo.GetPrescriber(ctx, *input.PrescriberID)
		return p, referenced("prescriber", *input.PrescriberID, err)
	}
	p, _, err := s.persister.resolver.ResolvePrescriber(ctx, repo, input.Prescriber)
	return p, err
}

func (s *orderService) devicesFor(ctx context.Context, repo port.EntityRepository, input *CreateOrderInput) ([]domain.OrderDevice, error) {
	var lines []domain.OrderDevice
	for _, ref := range input.DeviceIDs {
		d, err := repo.GetDevice(ctx, ref.DeviceID)
		if err := referenced("device", ref.DeviceID, err); err != nil {
			return nil, err
		}
		lines = append(lines, domain.OrderDevice{DeviceID: d.ID, Quantity: ref.Quantity, Device: d})
	}
	resolved, err := s.persister.resolveDevices(ctx, repo, input.Devices)
	if err != nil {
		return nil, err
	}
	return append(lines, resolved...), nil
}

// referenced turns a missing referenced row into ErrReferencedEntityMissing.
func referenced(kind string, id int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrReferencedEntityMissing)
	}
	return err
}

func (s *orderService) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("orderService.GetByID: %w", err)
	}
	return o, nil
}

func (s *orderService) List(ctx context.Context, offset, limit int) ([]domain.Order, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	orders, total, err := s.store.ListOrders(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("orderService.List: %w", err)
	}
	return orders, total, nil
}

// validateCreateInput checks the shape of a direct create request. Every
// problem is reported, not just the first.
func validateCreateInput(in *CreateOrderInput) error {
	if in == nil {
		return domain.ErrInvalidOrderInput
	}
	var fields []domain.FieldIssue
	add := func(field, msg string) {
		fields = append(fields, domain.FieldIssue{Field: field, Message: msg})
	}

	switch {
	case in.PatientID != nil && in.Patient != nil:
		add("patient", "give either patient_id or patient, not both")
	case in.PatientID == nil && in.Patient == nil:
		add("patient", "patient_id or patient is required")
	case in.Patient != nil:
		if trimPtr(in.Patient.MedicalRecordNumber) == "" {
			add("patient.medical_record_number", "is required")
		}
		if strings.TrimSpace(in.Patient.FirstName) == "" {
			add("patient.first_name", "is required")
		}
		if strings.TrimSpace(in.Patient.LastName) == "" {
			add("patient.last_name", "is required")
		}
		if in.Patient.Age != nil && (*in.Patient.Age < 0 || *in.Patient.Age > 150) {
			add("patient.age", "must be between 0 and 150")
		}
	}

	switch {
	case in.PrescriberID != nil && in.Prescriber != nil:
		add("prescriber", "give either prescriber_id or prescriber, not both")
	case in.PrescriberID == nil && in.Prescriber == nil:
		add("prescriber", "prescriber_id or prescriber is required")
	case in.Prescriber != nil:
		if strings.TrimSpace(in.Prescriber.FirstName) == "" {
			add("prescriber.first_name", "is required")
		}
		if strings.TrimSpace(in.Prescriber.LastName) == "" {
			add("prescriber.last_name", "is required")
		}
	}

	if len(in.DeviceIDs) > 0 && len(in.Devices) > 0 {
		add("devices", "give either device_ids or devices, not both")
	}
	for i, ref := range in.DeviceIDs {
		if ref.Quantity < 0 {
			add(fmt.Sprintf("device_ids[%d].quantity", i), "must be at least 1")
		}
	}
	for i, d := range in.Devices {
		if strings.TrimSpace(d.Name) == "" {
			add(fmt.Sprintf("devices[%d].name", i), "is required")
		}
		if d.Quantity < 0 {
			add(fmt.Sprintf("devices[%d].quantity", i), "must be at least 1")
		}
	}

	if in.ItemQuantity != nil && *in.ItemQuantity < 1 {
		add("item_quantity", "must be at least 1")
	}
	if in.OrderCostRaw != nil && *in.OrderCostRaw < 0 {
		add("order_cost_raw", "must not be negative")
	}
	if in.OrderCostToInsurer != nil && *in.OrderCostToInsurer < 0 {
		add("order_cost_to_insurer", "must not be negative")
	}

	if len(fields) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidOrderInput, &domain.ValidationError{Fields: fields})
	}
	return nil
}
