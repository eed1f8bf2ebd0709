package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/domain"
	"medorders/internal/lock"
	"medorders/internal/repository/memory"
	"medorders/internal/service"
)

// recordingLocker remembers the keys it was asked to lock, in order.
type recordingLocker struct {
	*lock.LocalLocker
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.LocalLocker.Lock(ctx, key)
}

func (l *recordingLocker) skuKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, k := range l.keys {
		if strings.HasPrefix(k, "sku:") {
			out = append(out, k)
		}
	}
	return out
}

func TestPersister_Persist_ResolvesSKUsOnceInSortedOrder(t *testing.T) {
	store := memory.NewStore()
	locker := &recordingLocker{LocalLocker: lock.NewLocalLocker()}
	log := zerolog.Nop()
	p := service.NewPersister(store, service.NewResolver(locker, log), service.NewDuplicateDetector(testDuplicateConfig(), log), log)

	data := johnDoeOrder()
	data.Devices = []domain.ParsedDevice{
		{Name: "commode", SKU: strPtr("CR-200"), Quantity: 1},
		{Name: "wheelchair", SKU: strPtr("WC-100"), Quantity: 1},
		{Name: "commode", SKU: strPtr(" CR-200 "), Quantity: 2},
		{Name: "cane", Quantity: 1},
	}

	res, err := p.Persist(context.Background(), data, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"sku:CR-200", "sku:WC-100"}, locker.skuKeys())

	lines := res.Order.Devices
	require.Len(t, lines, 3)
	assert.Equal(t, "commode", lines[0].Device.Name)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "wheelchair", lines[1].Device.Name)
	assert.Equal(t, 1, lines[1].Quantity)
	assert.Equal(t, "cane", lines[2].Device.Name)
	assert.Nil(t, lines[2].Device.SKU)
}

func TestPersister_Persist_OppositeDeviceOrdersDoNotDeadlock(t *testing.T) {
	store := memory.NewStore()
	p := newTestPersister(store)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := johnDoeOrder()
			data.Patient.MedicalRecordNumber = strPtr(fmt.Sprintf("MRN-%d", i))
			data.Prescriber.NPI = nil
			a := domain.ParsedDevice{Name: "walker", SKU: strPtr("A-1"), Quantity: 1}
			b := domain.ParsedDevice{Name: "wheelchair", SKU: strPtr("B-1"), Quantity: 1}
			if i%2 == 0 {
				data.Devices = []domain.ParsedDevice{a, b}
			} else {
				data.Devices = []domain.ParsedDevice{b, a}
			}
			_, errs[i] = p.Persist(ctx, data, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "order %d", i)
	}

	a, err := store.FindDeviceBySKU(context.Background(), "A-1")
	require.NoError(t, err)
	b, err := store.FindDeviceBySKU(context.Background(), "B-1")
	require.NoError(t, err)

	orders, total, err := store.ListOrders(context.Background(), 0, n)
	require.NoError(t, err)
	assert.Equal(t, n, total)
	for _, o := range orders {
		ids := make([]int64, 0, len(o.Devices))
		for _, l := range o.Devices {
			ids = append(ids, l.DeviceID)
		}
		assert.ElementsMatch(t, []int64{a.ID, b.ID}, ids)
	}
}
