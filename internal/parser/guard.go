package parser

import (
	"fmt"
	"strings"
	"unicode"

	"medorders/internal/domain"
)

// normalizeAlnum lowercases s and keeps only letters and digits, so "MRN:
// 12-345" and "12345" compare equal.
func normalizeAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPlaceholder(id string) bool {
	n := normalizeAlnum(id)
	if n == "" {
		return true
	}
	return strings.Trim(n, "0") == "" || strings.Trim(n, "x") == ""
}

// guardIdentifiers nulls identifiers the model could not have read from the
// source text. Natural keys drive entity resolution, so an invented MRN, NPI
// or SKU must never reach the resolver.
func guardIdentifiers(data *domain.ParsedOrderData, source string) []string {
	normalized := normalizeAlnum(source)
	var notes []string
	check := func(path string, id **string) {
		if *id == nil {
			return
		}
		value := **id
		switch {
		case isPlaceholder(value):
			notes = append(notes, fmt.Sprintf("dropped %s: placeholder value %q", path, value))
		case !strings.Contains(normalized, normalizeAlnum(value)):
			notes = append(notes, fmt.Sprintf("dropped %s: %q does not appear in the document", path, value))
		default:
			return
		}
		*id = nil
	}

	if data.Patient != nil {
		check("patient.medical_record_number", &data.Patient.MedicalRecordNumber)
	}
	if data.Prescriber != nil {
		check("prescriber.npi", &data.Prescriber.NPI)
	}
	for i := range data.Devices {
		check(fmt.Sprintf("devices[%d].sku", i), &data.Devices[i].SKU)
	}
	return notes
}
