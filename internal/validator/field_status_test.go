package validator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/domain"
	"medorders/internal/validator"
)

func TestComputeFieldStatuses_AllPassed(t *testing.T) {
	report := validator.NewPersistenceRegistry().Run(context.Background(), completeOrder())

	statuses := validator.ComputeFieldStatuses(report)

	require.Contains(t, statuses, "patient.first_name")
	assert.Equal(t, domain.FieldStatusValid, statuses["patient.first_name"].Status)
	assert.Empty(t, statuses["patient.first_name"].Messages)
}

func TestComputeFieldStatuses_ErrorAndWarning(t *testing.T) {
	data := completeOrder()
	data.Patient.LastName = ""
	data.Prescriber.Email = strPtr("nope")

	statuses := validator.ComputeFieldStatuses(validator.NewPersistenceRegistry().Run(context.Background(), data))

	assert.Equal(t, domain.FieldStatusInvalid, statuses["patient.last_name"].Status)
	assert.Equal(t, domain.FieldStatusUnsure, statuses["prescriber.email"].Status)
	assert.Len(t, statuses["prescriber.email"].Messages, 1)
}

func TestComputeFieldStatuses_ErrorWinsOverWarning(t *testing.T) {
	report := &validator.Report{Results: []validator.RuleResult{
		{Severity: domain.ValidationSeverityError},
		{Severity: domain.ValidationSeverityWarning},
	}}
	report.Results[0].FieldPath = "prescriber.npi"
	report.Results[0].Message = "prescriber.npi must be exactly 10 digits"
	report.Results[1].FieldPath = "prescriber.npi"
	report.Results[1].Message = "prescriber.npi is missing or empty"

	statuses := validator.ComputeFieldStatuses(report)

	assert.Equal(t, domain.FieldStatusInvalid, statuses["prescriber.npi"].Status)
	assert.Len(t, statuses["prescriber.npi"].Messages, 2)
}
