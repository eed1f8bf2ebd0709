package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/domain"
	"medorders/internal/port"
	"medorders/internal/repository/memory"
)

func strPtr(s string) *string { return &s }

func TestStore_PatientUniqueByMRN(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	p := &domain.Patient{MedicalRecordNumber: "MRN-1", FirstName: "John", LastName: "Doe"}
	require.NoError(t, s.InsertPatient(ctx, p))
	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	err := s.InsertPatient(ctx, &domain.Patient{MedicalRecordNumber: "MRN-1", FirstName: "Johnny", LastName: "Doe"})
	assert.ErrorIs(t, err, domain.ErrEntityConflict)

	found, err := s.FindPatientByMRN(ctx, "MRN-1")
	require.NoError(t, err)
	assert.Equal(t, "John", found.FirstName)

	_, err = s.FindPatientByMRN(ctx, "MRN-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_NullNaturalKeysNeverConflict(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.InsertPrescriber(ctx, &domain.Prescriber{FirstName: "Jane", LastName: "Smith"}))
	require.NoError(t, s.InsertPrescriber(ctx, &domain.Prescriber{FirstName: "Jane", LastName: "Smith"}))
	require.NoError(t, s.InsertDevice(ctx, &domain.Device{Name: "Cane"}))
	require.NoError(t, s.InsertDevice(ctx, &domain.Device{Name: "Cane"}))

	require.NoError(t, s.InsertDevice(ctx, &domain.Device{Name: "Wheelchair", SKU: strPtr("WC-100")}))
	err := s.InsertDevice(ctx, &domain.Device{Name: "Other", SKU: strPtr("WC-100")})
	assert.ErrorIs(t, err, domain.ErrEntityConflict)
}

func seedPair(t *testing.T, s *memory.Store) (patientID, prescriberID, deviceID int64) {
	t.Helper()
	ctx := context.Background()
	p := &domain.Patient{MedicalRecordNumber: "MRN-1", FirstName: "John", LastName: "Doe"}
	require.NoError(t, s.InsertPatient(ctx, p))
	pr := &domain.Prescriber{NPI: strPtr("1234567890"), FirstName: "Jane", LastName: "Smith"}
	require.NoError(t, s.InsertPrescriber(ctx, pr))
	d := &domain.Device{Name: "Wheelchair", SKU: strPtr("WC-100")}
	require.NoError(t, s.InsertDevice(ctx, d))
	return p.ID, pr.ID, d.ID
}

func TestStore_WithTx_RollbackOnError(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(repo port.EntityRepository) error {
		require.NoError(t, repo.InsertPatient(ctx, &domain.Patient{MedicalRecordNumber: "MRN-9", FirstName: "A", LastName: "B"}))
		require.NoError(t, repo.InsertDevice(ctx, &domain.Device{Name: "Cane", SKU: strPtr("C-1")}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.FindPatientByMRN(ctx, "MRN-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.FindDeviceBySKU(ctx, "C-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The key is free again after rollback.
	require.NoError(t, s.InsertPatient(ctx, &domain.Patient{MedicalRecordNumber: "MRN-9", FirstName: "A", LastName: "B"}))
}

func TestStore_WithTx_RollbackOnPanic(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(repo port.EntityRepository) error {
			_ = repo.InsertPatient(ctx, &domain.Patient{MedicalRecordNumber: "MRN-P", FirstName: "A", LastName: "B"})
			panic("boom")
		})
	})
	_, err := s.FindPatientByMRN(ctx, "MRN-P")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_WithTx_Commit(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	patientID, prescriberID, deviceID := seedPair(t, s)

	var orderID int64
	err := s.WithTx(ctx, func(repo port.EntityRepository) error {
		o := &domain.Order{
			PatientID:    patientID,
			PrescriberID: prescriberID,
			ItemName:     strPtr("Wheelchair"),
			Devices:      []domain.OrderDevice{{DeviceID: deviceID, Quantity: 2}},
		}
		if err := repo.InsertOrder(ctx, o); err != nil {
			return err
		}
		orderID = o.ID
		return nil
	})
	require.NoError(t, err)

	o, err := s.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, o.Devices, 1)
	assert.Equal(t, 2, o.Devices[0].Quantity)
	require.NotNil(t, o.Devices[0].Device)
	assert.Equal(t, "Wheelchair", o.Devices[0].Device.Name)
	require.NotNil(t, o.Patient)
	assert.Equal(t, "MRN-1", o.Patient.MedicalRecordNumber)
	require.NotNil(t, o.Prescriber)
}

// holdTx opens a transaction that inserts a patient and stays open until
// release is closed, then returns result.
func holdTx(s *memory.Store, mrn string, result error) (patientID chan int64, release chan struct{}, done chan error) {
	patientID, release, done = make(chan int64, 1), make(chan struct{}), make(chan error, 1)
	go func() {
		done <- s.WithTx(context.Background(), func(repo port.EntityRepository) error {
			p := &domain.Patient{MedicalRecordNumber: mrn, FirstName: "A", LastName: "B"}
			if err := repo.InsertPatient(context.Background(), p); err != nil {
				close(patientID)
				return err
			}
			patientID <- p.ID
			<-release
			return result
		})
	}()
	return patientID, release, done
}

func TestStore_WithTx_UncommittedRowsArePrivate(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	heldID, release, aDone := holdTx(s, "MRN-1", boom)
	firstID := <-heldID
	require.NotZero(t, firstID)

	_, err := s.FindPatientByMRN(ctx, "MRN-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetPatient(ctx, firstID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var orderID int64
	bDone := make(chan error, 1)
	go func() {
		bDone <- s.WithTx(ctx, func(repo port.EntityRepository) error {
			if _, err := repo.FindPatientByMRN(ctx, "MRN-1"); !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("uncommitted patient visible: %v", err)
			}
			p := &domain.Patient{MedicalRecordNumber: "MRN-1", FirstName: "John", LastName: "Doe"}
			if err := repo.InsertPatient(ctx, p); err != nil {
				return err
			}
			pr := &domain.Prescriber{FirstName: "Jane", LastName: "Smith"}
			if err := repo.InsertPrescriber(ctx, pr); err != nil {
				return err
			}
			o := &domain.Order{PatientID: p.ID, PrescriberID: pr.ID}
			if err := repo.InsertOrder(ctx, o); err != nil {
				return err
			}
			orderID = o.ID
			return nil
		})
	}()

	select {
	case err := <-bDone:
		t.Fatalf("insert of a held key did not wait: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.ErrorIs(t, <-aDone, boom)
	require.NoError(t, <-bDone)

	o, err := s.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.NotEqual(t, firstID, o.PatientID)
	require.NotNil(t, o.Patient)
	assert.Equal(t, o.PatientID, o.Patient.ID)
	assert.Equal(t, "John", o.Patient.FirstName)
	_, err = s.GetPatient(ctx, o.PatientID)
	assert.NoError(t, err)
}

func TestStore_WithTx_WaitingInsertConflictsAfterCommit(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	heldID, release, aDone := holdTx(s, "MRN-1", nil)
	id := <-heldID

	bDone := make(chan error, 1)
	go func() {
		bDone <- s.InsertPatient(ctx, &domain.Patient{MedicalRecordNumber: "MRN-1", FirstName: "X", LastName: "Y"})
	}()
	close(release)
	require.NoError(t, <-aDone)
	assert.ErrorIs(t, <-bDone, domain.ErrEntityConflict)

	found, err := s.FindPatientByMRN(ctx, "MRN-1")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
}

func TestStore_InsertOrder_RejectsUncommittedReference(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	pr := &domain.Prescriber{FirstName: "Jane", LastName: "Smith"}
	require.NoError(t, s.InsertPrescriber(ctx, pr))

	heldID, release, aDone := holdTx(s, "MRN-1", errors.New("rollback"))
	id := <-heldID

	err := s.InsertOrder(ctx, &domain.Order{PatientID: id, PrescriberID: pr.ID})
	assert.ErrorIs(t, err, domain.ErrReferencedEntityMissing)

	close(release)
	assert.Error(t, <-aDone)
	_, total, err := s.ListOrders(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStore_InsertOrder_MissingReference(t *testing.T) {
	s := memory.NewStore()
	err := s.InsertOrder(context.Background(), &domain.Order{PatientID: 7, PrescriberID: 8})
	assert.ErrorIs(t, err, domain.ErrReferencedEntityMissing)
}

func TestStore_ListOrdersForPair(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	patientID, prescriberID, _ := seedPair(t, s)
	other := &domain.Patient{MedicalRecordNumber: "MRN-2", FirstName: "Ann", LastName: "Lee"}
	require.NoError(t, s.InsertPatient(ctx, other))

	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.InsertOrder(ctx, &domain.Order{PatientID: patientID, PrescriberID: prescriberID}))
	}
	require.NoError(t, s.InsertOrder(ctx, &domain.Order{PatientID: other.ID, PrescriberID: prescriberID}))

	orders, err := s.ListOrdersForPair(ctx, port.OrderHistoryQuery{PatientID: patientID, PrescriberID: prescriberID})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, int64(3), orders[0].ID)
	assert.Equal(t, int64(1), orders[2].ID)

	orders, err = s.ListOrdersForPair(ctx, port.OrderHistoryQuery{
		PatientID: patientID, PrescriberID: prescriberID, Since: base.Add(90 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(3), orders[0].ID)
}

func TestStore_ListOrders_Pagination(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	patientID, prescriberID, _ := seedPair(t, s)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertOrder(ctx, &domain.Order{PatientID: patientID, PrescriberID: prescriberID}))
	}

	page, total, err := s.ListOrders(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].ID)
	assert.Equal(t, int64(3), page[1].ID)

	page, total, err = s.ListOrders(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, page)
}
