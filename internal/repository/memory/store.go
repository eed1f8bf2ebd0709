// Package memory is an in-process port.EntityStore for local runs and tests.
// Natural keys are unique exactly as in the SQL schema, and rows written in
// a transaction stay private to it until commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medorders/internal/domain"
	"medorders/internal/port"
)

const (
	tablePatients    = "patients"
	tablePrescribers = "prescribers"
	tableDevices     = "devices"
	tableOrders      = "orders"
)

type rowRef struct {
	table string
	id    int64
}

// Store keeps all entities in maps guarded by one mutex.
type Store struct {
	mu     sync.RWMutex
	nextID map[string]int64
	now    func() time.Time

	patients    map[int64]domain.Patient
	byMRN       map[string]int64
	prescribers map[int64]domain.Prescriber
	byNPI       map[string]int64
	devices     map[int64]domain.Device
	bySKU       map[string]int64
	orders      map[int64]domain.Order

	// pending maps rows written by open transactions to their writer.
	pending map[rowRef]*txRepo
}

var _ port.EntityStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		nextID:      map[string]int64{},
		now:         func() time.Time { return time.Now().UTC() },
		patients:    map[int64]domain.Patient{},
		byMRN:       map[string]int64{},
		prescribers: map[int64]domain.Prescriber{},
		byNPI:       map[string]int64{},
		devices:     map[int64]domain.Device{},
		bySKU:       map[string]int64{},
		orders:      map[int64]domain.Order{},
		pending:     map[rowRef]*txRepo{},
	}
}

// SetClock overrides the creation timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// visible reports whether view may read the row. A nil view sees committed
// rows only. Callers hold the lock.
func (s *Store) visible(view *txRepo, table string, id int64) bool {
	owner, ok := s.pending[rowRef{table, id}]
	return !ok || owner == view
}

// claimKey checks a natural key before an insert. A key written by another
// open transaction blocks until that transaction ends, like a unique index
// in PostgreSQL. It returns true when the key is taken. Callers hold the
// write lock; it is released while waiting.
func (s *Store) claimKey(ctx context.Context, view *txRepo, table string, index map[string]int64, key string) (bool, error) {
	for {
		id, ok := index[key]
		if !ok {
			return false, nil
		}
		owner, open := s.pending[rowRef{table, id}]
		if !open || owner == view {
			return true, nil
		}
		done := owner.done
		s.mu.Unlock()
		select {
		case <-done:
			s.mu.Lock()
		case <-ctx.Done():
			s.mu.Lock()
			return false, ctx.Err()
		}
	}
}

// track marks a freshly inserted row as owned by view. undo reverts it on
// rollback. Callers hold the write lock.
func (s *Store) track(view *txRepo, table string, id int64, undo func()) {
	if view == nil {
		return
	}
	ref := rowRef{table, id}
	s.pending[ref] = view
	view.refs = append(view.refs, ref)
	view.undo = append(view.undo, undo)
}

func (s *Store) FindPatientByMRN(_ context.Context, mrn string) (*domain.Patient, error) {
	return s.findPatientByMRN(nil, mrn)
}

func (s *Store) GetPatient(_ context.Context, id int64) (*domain.Patient, error) {
	return s.getPatient(nil, id)
}

func (s *Store) InsertPatient(ctx context.Context, p *domain.Patient) error {
	return s.insertPatient(ctx, nil, p)
}

func (s *Store) FindPrescriberByNPI(_ context.Context, npi string) (*domain.Prescriber, error) {
	return s.findPrescriberByNPI(nil, npi)
}

func (s *Store) GetPrescriber(_ context.Context, id int64) (*domain.Prescriber, error) {
	return s.getPrescriber(nil, id)
}

func (s *Store) InsertPrescriber(ctx context.Context, p *domain.Prescriber) error {
	return s.insertPrescriber(ctx, nil, p)
}

func (s *Store) FindDeviceBySKU(_ context.Context, sku string) (*domain.Device, error) {
	return s.findDeviceBySKU(nil, sku)
}

func (s *Store) GetDevice(_ context.Context, id int64) (*domain.Device, error) {
	return s.getDevice(nil, id)
}

func (s *Store) InsertDevice(ctx context.Context, d *domain.Device) error {
	return s.insertDevice(ctx, nil, d)
}

func (s *Store) InsertOrder(ctx context.Context, o *domain.Order) error {
	return s.insertOrder(ctx, nil, o)
}

// ListOrdersForPair returns committed orders for the pair, newest first.
func (s *Store) ListOrdersForPair(_ context.Context, q port.OrderHistoryQuery) ([]domain.Order, error) {
	return s.listOrdersForPair(nil, q), nil
}

func (s *Store) findPatientByMRN(view *txRepo, mrn string) (*domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byMRN[mrn]
	if !ok || !s.visible(view, tablePatients, id) {
		return nil, domain.ErrNotFound
	}
	p := s.patients[id]
	return &p, nil
}

func (s *Store) getPatient(view *txRepo, id int64) (*domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok || !s.visible(view, tablePatients, id) {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Store) insertPatient(ctx context.Context, view *txRepo, p *domain.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken, err := s.claimKey(ctx, view, tablePatients, s.byMRN, p.MedicalRecordNumber)
	if err != nil {
		return fmt.Errorf("memory.InsertPatient: %w", err)
	}
	if taken {
		return fmt.Errorf("memory.InsertPatient: %w", domain.ErrEntityConflict)
	}
	p.ID = s.id(tablePatients)
	p.CreatedAt = s.now()
	s.patients[p.ID] = *p
	s.byMRN[p.MedicalRecordNumber] = p.ID
	id, mrn := p.ID, p.MedicalRecordNumber
	s.track(view, tablePatients, id, func() {
		delete(s.patients, id)
		delete(s.byMRN, mrn)
	})
	return nil
}

func (s *Store) findPrescriberByNPI(view *txRepo, npi string) (*domain.Prescriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNPI[npi]
	if !ok || !s.visible(view, tablePrescribers, id) {
		return nil, domain.ErrNotFound
	}
	p := s.prescribers[id]
	return &p, nil
}

func (s *Store) getPrescriber(view *txRepo, id int64) (*domain.Prescriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prescribers[id]
	if !ok || !s.visible(view, tablePrescribers, id) {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Store) insertPrescriber(ctx context.Context, view *txRepo, p *domain.Prescriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.NPI != nil {
		taken, err := s.claimKey(ctx, view, tablePrescribers, s.byNPI, *p.NPI)
		if err != nil {
			return fmt.Errorf("memory.InsertPrescriber: %w", err)
		}
		if taken {
			return fmt.Errorf("memory.InsertPrescriber: %w", domain.ErrEntityConflict)
		}
	}
	p.ID = s.id(tablePrescribers)
	p.CreatedAt = s.now()
	s.prescribers[p.ID] = *p
	if p.NPI != nil {
		s.byNPI[*p.NPI] = p.ID
	}
	id, npi := p.ID, p.NPI
	s.track(view, tablePrescribers, id, func() {
		delete(s.prescribers, id)
		if npi != nil {
			delete(s.byNPI, *npi)
		}
	})
	return nil
}

func (s *Store) findDeviceBySKU(view *txRepo, sku string) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySKU[sku]
	if !ok || !s.visible(view, tableDevices, id) {
		return nil, domain.ErrNotFound
	}
	d := s.devices[id]
	return &d, nil
}

func (s *Store) getDevice(view *txRepo, id int64) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok || !s.visible(view, tableDevices, id) {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (s *Store) insertDevice(ctx context.Context, view *txRepo, d *domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.SKU != nil {
		taken, err := s.claimKey(ctx, view, tableDevices, s.bySKU, *d.SKU)
		if err != nil {
			return fmt.Errorf("memory.InsertDevice: %w", err)
		}
		if taken {
			return fmt.Errorf("memory.InsertDevice: %w", domain.ErrEntityConflict)
		}
	}
	d.ID = s.id(tableDevices)
	d.CreatedAt = s.now()
	s.devices[d.ID] = *d
	if d.SKU != nil {
		s.bySKU[*d.SKU] = d.ID
	}
	id, sku := d.ID, d.SKU
	s.track(view, tableDevices, id, func() {
		delete(s.devices, id)
		if sku != nil {
			delete(s.bySKU, *sku)
		}
	})
	return nil
}

// insertOrder accepts only references visible to view, so a committed order
// never points at a row another transaction may still roll back.
func (s *Store) insertOrder(_ context.Context, view *txRepo, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[o.PatientID]; !ok || !s.visible(view, tablePatients, o.PatientID) {
		return fmt.Errorf("memory.InsertOrder: patient %d: %w", o.PatientID, domain.ErrReferencedEntityMissing)
	}
	if _, ok := s.prescribers[o.PrescriberID]; !ok || !s.visible(view, tablePrescribers, o.PrescriberID) {
		return fmt.Errorf("memory.InsertOrder: prescriber %d: %w", o.PrescriberID, domain.ErrReferencedEntityMissing)
	}
	for _, od := range o.Devices {
		if _, ok := s.devices[od.DeviceID]; !ok || !s.visible(view, tableDevices, od.DeviceID) {
			return fmt.Errorf("memory.InsertOrder: device %d: %w", od.DeviceID, domain.ErrReferencedEntityMissing)
		}
	}
	o.ID = s.id(tableOrders)
	o.CreatedAt = s.now()
	stored := *o
	stored.Patient, stored.Prescriber = nil, nil
	stored.Devices = make([]domain.OrderDevice, len(o.Devices))
	for i, od := range o.Devices {
		stored.Devices[i] = domain.OrderDevice{DeviceID: od.DeviceID, Quantity: od.Quantity}
	}
	s.orders[o.ID] = stored
	id := o.ID
	s.track(view, tableOrders, id, func() { delete(s.orders, id) })
	return nil
}

func (s *Store) listOrdersForPair(view *txRepo, q port.OrderHistoryQuery) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.PatientID != q.PatientID || o.PrescriberID != q.PrescriberID {
			continue
		}
		if !s.visible(view, tableOrders, o.ID) {
			continue
		}
		if !q.Since.IsZero() && o.CreatedAt.Before(q.Since) {
			continue
		}
		out = append(out, s.withDevices(o))
	}
	sortNewestFirst(out)
	return out
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok || !s.visible(nil, tableOrders, id) {
		return nil, domain.ErrNotFound
	}
	o = s.withParties(s.withDevices(o))
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, offset, limit int) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if !s.visible(nil, tableOrders, o.ID) {
			continue
		}
		all = append(all, s.withParties(s.withDevices(o)))
	}
	sortNewestFirst(all)
	total := len(all)
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// withDevices returns a copy of o with its device rows expanded. Callers
// hold the read lock.
func (s *Store) withDevices(o domain.Order) domain.Order {
	devices := make([]domain.OrderDevice, len(o.Devices))
	for i, od := range o.Devices {
		d := s.devices[od.DeviceID]
		devices[i] = domain.OrderDevice{DeviceID: od.DeviceID, Quantity: od.Quantity, Device: &d}
	}
	o.Devices = devices
	return o
}

// withParties attaches patient and prescriber. Callers hold the read lock.
func (s *Store) withParties(o domain.Order) domain.Order {
	p := s.patients[o.PatientID]
	pr := s.prescribers[o.PrescriberID]
	o.Patient, o.Prescriber = &p, &pr
	return o
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}
