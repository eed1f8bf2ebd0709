package service_test

import (
	"github.com/rs/zerolog"

	"medorders/internal/config"
	"medorders/internal/domain"
	"medorders/internal/lock"
	"medorders/internal/repository/memory"
	"medorders/internal/service"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func i64Ptr(n int64) *int64   { return &n }

func testDuplicateConfig() config.DuplicateConfig {
	return config.DuplicateConfig{
		ExactWeight:    3,
		PartialWeight:  2,
		QuantityWeight: 1,
		MinScore:       2,
		MaxResults:     5,
	}
}

func newTestPersister(store *memory.Store) *service.Persister {
	log := zerolog.Nop()
	resolver := service.NewResolver(lock.NewLocalLocker(), log)
	detector := service.NewDuplicateDetector(testDuplicateConfig(), log)
	return service.NewPersister(store, resolver, detector, log)
}

// johnDoeOrder is the parsed form of a complete wheelchair order.
func johnDoeOrder() *domain.ParsedOrderData {
	return &domain.ParsedOrderData{
		Patient: &domain.ParsedPatient{
			FirstName: "John", LastName: "Doe",
			MedicalRecordNumber: strPtr("123"), Age: intPtr(45),
		},
		Prescriber: &domain.ParsedPrescriber{
			FirstName: "Jane", LastName: "Smith", NPI: strPtr("9876543210"),
		},
		Devices:          []domain.ParsedDevice{{Name: "wheelchair", SKU: strPtr("WC-100"), Quantity: 1}},
		ItemName:         strPtr("wheelchair"),
		ItemQuantity:     intPtr(1),
		OrderCostRaw:     i64Ptr(125000),
		ReasonPrescribed: strPtr("mobility"),
	}
}
