package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"medorders/internal/domain"
	"medorders/internal/port"
)

// entityRepo runs against either the pool or a transaction.
type entityRepo struct {
	q sqlx.ExtContext
}

var _ port.EntityRepository = (*entityRepo)(nil)

func (r *entityRepo) FindPatientByMRN(ctx context.Context, mrn string) (*domain.Patient, error) {
	var p domain.Patient
	err := sqlx.GetContext(ctx, r.q, &p,
		"SELECT * FROM patients WHERE medical_record_number = $1", mrn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.FindPatientByMRN: %w", err)
	}
	return &p, nil
}

// InsertPatient inserts unless the MRN is taken, in which case it returns
// domain.ErrEntityConflict and writes nothing.
func (r *entityRepo) InsertPatient(ctx context.Context, p *domain.Patient) error {
	rows, err := sqlx.NamedQueryContext(ctx, r.q, `
		INSERT INTO patients (medical_record_number, first_name, last_name, age)
		VALUES (:medical_record_number, :first_name, :last_name, :age)
		ON CONFLICT (medical_record_number) DO NOTHING
		RETURNING id, created_at`, p)
	if err != nil {
		return mapInsertError("entityRepo.InsertPatient", err)
	}
	return scanReturning("entityRepo.InsertPatient", rows, &p.ID, &p.CreatedAt)
}

func (r *entityRepo) GetPatient(ctx context.Context, id int64) (*domain.Patient, error) {
	var p domain.Patient
	err := sqlx.GetContext(ctx, r.q, &p, "SELECT * FROM patients WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.GetPatient: %w", err)
	}
	return &p, nil
}

func (r *entityRepo) FindPrescriberByNPI(ctx context.Context, npi string) (*domain.Prescriber, error) {
	var p domain.Prescriber
	err := sqlx.GetContext(ctx, r.q, &p, "SELECT * FROM prescribers WHERE npi = $1", npi)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.FindPrescriberByNPI: %w", err)
	}
	return &p, nil
}

func (r *entityRepo) InsertPrescriber(ctx context.Context, p *domain.Prescriber) error {
	rows, err := sqlx.NamedQueryContext(ctx, r.q, `
		INSERT INTO prescribers (npi, first_name, last_name, phone_number, email, clinic_name, clinic_address)
		VALUES (:npi, :first_name, :last_name, :phone_number, :email, :clinic_name, :clinic_address)
		ON CONFLICT (npi) DO NOTHING
		RETURNING id, created_at`, p)
	if err != nil {
		return mapInsertError("entityRepo.InsertPrescriber", err)
	}
	return scanReturning("entityRepo.InsertPrescriber", rows, &p.ID, &p.CreatedAt)
}

func (r *entityRepo) GetPrescriber(ctx context.Context, id int64) (*domain.Prescriber, error) {
	var p domain.Prescriber
	err := sqlx.GetContext(ctx, r.q, &p, "SELECT * FROM prescribers WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.GetPrescriber: %w", err)
	}
	return &p, nil
}

func (r *entityRepo) FindDeviceBySKU(ctx context.Context, sku string) (*domain.Device, error) {
	var d domain.Device
	err := sqlx.GetContext(ctx, r.q, &d, "SELECT * FROM devices WHERE sku = $1", sku)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.FindDeviceBySKU: %w", err)
	}
	return &d, nil
}

func (r *entityRepo) InsertDevice(ctx context.Context, d *domain.Device) error {
	rows, err := sqlx.NamedQueryContext(ctx, r.q, `
		INSERT INTO devices (sku, name, details, authorization_required, cost_per_unit, device_type)
		VALUES (:sku, :name, :details, :authorization_required, :cost_per_unit, :device_type)
		ON CONFLICT (sku) DO NOTHING
		RETURNING id, created_at`, d)
	if err != nil {
		return mapInsertError("entityRepo.InsertDevice", err)
	}
	return scanReturning("entityRepo.InsertDevice", rows, &d.ID, &d.CreatedAt)
}

func (r *entityRepo) GetDevice(ctx context.Context, id int64) (*domain.Device, error) {
	var d domain.Device
	err := sqlx.GetContext(ctx, r.q, &d, "SELECT * FROM devices WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.GetDevice: %w", err)
	}
	return &d, nil
}

// scanReturning reads the RETURNING row of an ON CONFLICT DO NOTHING insert.
// No row means the natural key already existed.
func scanReturning(op string, rows *sqlx.Rows, dest ...any) error {
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return mapInsertError(op, err)
		}
		return fmt.Errorf("%s: %w", op, domain.ErrEntityConflict)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("%s: scan: %w", op, err)
	}
	return rows.Err()
}
