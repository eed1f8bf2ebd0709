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

// Resolver maps parsed people and devices onto stored entities by natural
// key, creating them when no match exists.
type Resolver struct {
	locker port.KeyLocker
	log    zerolog.Logger
}

// NewResolver creates a Resolver that serializes work per natural key.
func NewResolver(locker port.KeyLocker, log zerolog.Logger) *Resolver {
	return &Resolver{locker: locker, log: log.With().Str("component", "resolver").Logger()}
}

// ResolvePatient returns the patient with the parsed MRN, inserting one if
// needed. A patient without an MRN cannot be resolved.
func (r *Resolver) ResolvePatient(ctx context.Context, repo port.EntityRepository, in *domain.ParsedPatient) (*domain.Patient, bool, error) {
	if in == nil {
		return nil, false, fmt.Errorf("resolver.ResolvePatient: patient: %w", domain.ErrMissingNaturalKey)
	}
	mrn := trimPtr(in.MedicalRecordNumber)
	if mrn == "" {
		return nil, false, fmt.Errorf("resolver.ResolvePatient: medical_record_number: %w", domain.ErrMissingNaturalKey)
	}

	p, created, err := withKeyLock(ctx, r.locker, "patient:"+mrn, func() (*domain.Patient, bool, error) {
		return getOrCreate(
			func() (*domain.Patient, error) { return repo.FindPatientByMRN(ctx, mrn) },
			func() (*domain.Patient, error) {
				p := &domain.Patient{
					MedicalRecordNumber: mrn,
					FirstName:           strings.TrimSpace(in.FirstName),
					LastName:            strings.TrimSpace(in.LastName),
					Age:                 in.Age,
				}
				return p, repo.InsertPatient(ctx, p)
			},
		)
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolver.ResolvePatient: %w", err)
	}
	r.logResolved("patient", p.ID, created)
	return p, created, nil
}

// ResolvePrescriber looks up by NPI. Without an NPI a new prescriber is
// always created.
func (r *Resolver) ResolvePrescriber(ctx context.Context, repo port.EntityRepository, in *domain.ParsedPrescriber) (*domain.Prescriber, bool, error) {
	if in == nil {
		return nil, false, fmt.Errorf("resolver.ResolvePrescriber: prescriber: %w", domain.ErrInvalidOrderInput)
	}
	npi := trimPtr(in.NPI)
	insert := func() (*domain.Prescriber, error) {
		p := &domain.Prescriber{
			FirstName:     strings.TrimSpace(in.FirstName),
			LastName:      strings.TrimSpace(in.LastName),
			PhoneNumber:   in.PhoneNumber,
			Email:         in.Email,
			ClinicName:    in.ClinicName,
			ClinicAddress: in.ClinicAddress,
		}
		if npi != "" {
			p.NPI = &npi
		}
		return p, repo.InsertPrescriber(ctx, p)
	}

	if npi == "" {
		p, err := insert()
		if err != nil {
			return nil, false, fmt.Errorf("resolver.ResolvePrescriber: %w", err)
		}
		r.logResolved("prescriber", p.ID, true)
		return p, true, nil
	}

	p, created, err := withKeyLock(ctx, r.locker, "npi:"+npi, func() (*domain.Prescriber, bool, error) {
		return getOrCreate(
			func() (*domain.Prescriber, error) { return repo.FindPrescriberByNPI(ctx, npi) },
			insert,
		)
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolver.ResolvePrescriber: %w", err)
	}
	r.logResolved("prescriber", p.ID, created)
	return p, created, nil
}

// ResolveDevice looks up by SKU. Without a SKU a new device is always
// created.
func (r *Resolver) ResolveDevice(ctx context.Context, repo port.EntityRepository, in *domain.ParsedDevice) (*domain.Device, bool, error) {
	if in == nil {
		return nil, false, fmt.Errorf("resolver.ResolveDevice: device: %w", domain.ErrInvalidOrderInput)
	}
	sku := trimPtr(in.SKU)
	insert := func() (*domain.Device, error) {
		d := &domain.Device{Name: strings.TrimSpace(in.Name)}
		if sku != "" {
			d.SKU = &sku
		}
		return d, repo.InsertDevice(ctx, d)
	}

	if sku == "" {
		d, err := insert()
		if err != nil {
			return nil, false, fmt.Errorf("resolver.ResolveDevice: %w", err)
		}
		r.logResolved("device", d.ID, true)
		return d, true, nil
	}

	d, created, err := withKeyLock(ctx, r.locker, "sku:"+sku, func() (*domain.Device, bool, error) {
		return getOrCreate(
			func() (*domain.Device, error) { return repo.FindDeviceBySKU(ctx, sku) },
			insert,
		)
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolver.ResolveDevice: %w", err)
	}
	r.logResolved("device", d.ID, created)
	return d, created, nil
}

func (r *Resolver) logResolved(kind string, id int64, created bool) {
	r.log.Debug().Str("entity", kind).Int64("id", id).Bool("created", created).Msg("entity resolved")
}

func withKeyLock[T any](ctx context.Context, locker port.KeyLocker, key string, fn func() (*T, bool, error)) (*T, bool, error) {
	release, err := locker.Lock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("locking %s: %w", key, err)
	}
	defer release()
	return fn()
}

// getOrCreate looks up, inserts on a miss, and retries the pair once when the
// insert loses a race for the natural key.
func getOrCreate[T any](find func() (*T, error), insert func() (*T, error)) (*T, bool, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		found, err := find()
		if err == nil {
			return found, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}

		created, err := insert()
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, domain.ErrEntityConflict) {
			return nil, false, err
		}
		lastErr = err
	}
	return nil, false, lastErr
}

func trimPtr(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
