package port

import (
	"context"

	"medorders/internal/domain"
)

// EntityRepository defines the contract for patient, prescriber, device and
// order persistence. Find methods return domain.ErrNotFound when no row
// matches. Insert methods return domain.ErrEntityConflict when the natural
// key is already taken.
type EntityRepository interface {
	OrderHistoryReader

	FindPatientByMRN(ctx context.Context, mrn string) (*domain.Patient, error)
	InsertPatient(ctx context.Context, patient *domain.Patient) error
	GetPatient(ctx context.Context, id int64) (*domain.Patient, error)

	FindPrescriberByNPI(ctx context.Context, npi string) (*domain.Prescriber, error)
	InsertPrescriber(ctx context.Context, prescriber *domain.Prescriber) error
	GetPrescriber(ctx context.Context, id int64) (*domain.Prescriber, error)

	FindDeviceBySKU(ctx context.Context, sku string) (*domain.Device, error)
	InsertDevice(ctx context.Context, device *domain.Device) error
	GetDevice(ctx context.Context, id int64) (*domain.Device, error)

	InsertOrder(ctx context.Context, order *domain.Order) error
}

// EntityStore is the shared entity store. WithTx runs fn inside a single
// transaction that commits only when fn returns nil.
type EntityStore interface {
	EntityRepository

	WithTx(ctx context.Context, fn func(repo EntityRepository) error) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, offset, limit int) ([]domain.Order, int, error)
	Ping(ctx context.Context) error
}

// KeyLocker serializes work on a single natural key. The returned release
// function must be called exactly once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
