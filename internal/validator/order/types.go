// Package order holds the built-in validation rules for parsed medical orders.
package order

import "medorders/internal/domain"

// ValidationResult is the outcome of one rule against one field.
type ValidationResult struct {
	Passed        bool
	FieldPath     string
	ExpectedValue string
	ActualValue   string
	Message       string
}

func patientOf(d *domain.ParsedOrderData) *domain.ParsedPatient {
	if d.Patient == nil {
		return &domain.ParsedPatient{}
	}
	return d.Patient
}

func prescriberOf(d *domain.ParsedOrderData) *domain.ParsedPrescriber {
	if d.Prescriber == nil {
		return &domain.ParsedPrescriber{}
	}
	return d.Prescriber
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
