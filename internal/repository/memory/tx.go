package memory

import (
	"context"

	"medorders/internal/domain"
	"medorders/internal/port"
)

// txRepo is the view of one open transaction. Its inserts are visible only
// to itself until commit, and inserts of a key it holds wait for it to end.
type txRepo struct {
	s    *Store
	refs []rowRef
	undo []func()
	done chan struct{}
}

var _ port.EntityRepository = (*txRepo)(nil)

// WithTx runs fn and reverts its inserts if fn fails or panics.
func (s *Store) WithTx(ctx context.Context, fn func(repo port.EntityRepository) error) (err error) {
	tx := &txRepo{s: s, done: make(chan struct{})}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	committed = true
	return nil
}

func (t *txRepo) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.release()
}

func (t *txRepo) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.release()
}

// release publishes or forgets the rows and wakes waiting inserts. Callers
// hold the write lock.
func (t *txRepo) release() {
	for _, ref := range t.refs {
		delete(t.s.pending, ref)
	}
	t.refs, t.undo = nil, nil
	close(t.done)
}

func (t *txRepo) FindPatientByMRN(_ context.Context, mrn string) (*domain.Patient, error) {
	return t.s.findPatientByMRN(t, mrn)
}

func (t *txRepo) GetPatient(_ context.Context, id int64) (*domain.Patient, error) {
	return t.s.getPatient(t, id)
}

func (t *txRepo) InsertPatient(ctx context.Context, p *domain.Patient) error {
	return t.s.insertPatient(ctx, t, p)
}

func (t *txRepo) FindPrescriberByNPI(_ context.Context, npi string) (*domain.Prescriber, error) {
	return t.s.findPrescriberByNPI(t, npi)
}

func (t *txRepo) GetPrescriber(_ context.Context, id int64) (*domain.Prescriber, error) {
	return t.s.getPrescriber(t, id)
}

func (t *txRepo) InsertPrescriber(ctx context.Context, p *domain.Prescriber) error {
	return t.s.insertPrescriber(ctx, t, p)
}

func (t *txRepo) FindDeviceBySKU(_ context.Context, sku string) (*domain.Device, error) {
	return t.s.findDeviceBySKU(t, sku)
}

func (t *txRepo) GetDevice(_ context.Context, id int64) (*domain.Device, error) {
	return t.s.getDevice(t, id)
}

func (t *txRepo) InsertDevice(ctx context.Context, d *domain.Device) error {
	return t.s.insertDevice(ctx, t, d)
}

func (t *txRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	return t.s.insertOrder(ctx, t, o)
}

func (t *txRepo) ListOrdersForPair(_ context.Context, q port.OrderHistoryQuery) ([]domain.Order, error) {
	return t.s.listOrdersForPair(t, q), nil
}
