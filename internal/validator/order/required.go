package order

import (
	"context"
	"fmt"
	"strings"

	"medorders/internal/domain"
)

// requiredFieldValidator checks that a required field is not empty.
type requiredFieldValidator struct {
	ruleKey     string
	ruleName    string
	fieldPath   string
	severity    domain.ValidationSeverity
	extract     func(*domain.ParsedOrderData) string
	perItem     bool // true for device-level checks
	extractItem func(*domain.ParsedDevice) string
}

func (v *requiredFieldValidator) RuleKey() string  { return v.ruleKey }
func (v *requiredFieldValidator) RuleName() string { return v.ruleName }
func (v *requiredFieldValidator) RuleType() domain.ValidationRuleType {
	return domain.ValidationRuleRequired
}
func (v *requiredFieldValidator) Severity() domain.ValidationSeverity { return v.severity }

func (v *requiredFieldValidator) Validate(_ context.Context, data *domain.ParsedOrderData) []ValidationResult {
	if v.perItem {
		results := make([]ValidationResult, 0, len(data.Devices))
		for i := range data.Devices {
			val := strings.TrimSpace(v.extractItem(&data.Devices[i]))
			fieldPath := fmt.Sprintf("devices[%d].%s", i, stripPrefix(v.fieldPath))
			results = append(results, ValidationResult{
				Passed:        val != "",
				FieldPath:     fieldPath,
				ExpectedValue: "non-empty value",
				ActualValue:   val,
				Message:       fieldMessage(val != "", fieldPath),
			})
		}
		return results
	}

	val := strings.TrimSpace(v.extract(data))
	return []ValidationResult{{
		Passed:        val != "",
		FieldPath:     v.fieldPath,
		ExpectedValue: "non-empty value",
		ActualValue:   val,
		Message:       fieldMessage(val != "", v.fieldPath),
	}}
}

func fieldMessage(passed bool, fieldPath string) string {
	if passed {
		return fmt.Sprintf("%s is present", fieldPath)
	}
	return fmt.Sprintf("%s is missing or empty", fieldPath)
}

func stripPrefix(fieldPath string) string {
	// "devices[i].name" → "name"
	if i := strings.LastIndexByte(fieldPath, '.'); i >= 0 {
		return fieldPath[i+1:]
	}
	return fieldPath
}

// RequiredNameValidators returns the name checks every extraction must pass.
func RequiredNameValidators() []*requiredFieldValidator {
	return []*requiredFieldValidator{
		{
			ruleKey: "req.patient.first_name", ruleName: "Required: Patient First Name",
			fieldPath: "patient.first_name", severity: domain.ValidationSeverityError,
			extract: func(d *domain.ParsedOrderData) string { return patientOf(d).FirstName },
		},
		{
			ruleKey: "req.patient.last_name", ruleName: "Required: Patient Last Name",
			fieldPath: "patient.last_name", severity: domain.ValidationSeverityError,
			extract: func(d *domain.ParsedOrderData) string { return patientOf(d).LastName },
		},
		{
			ruleKey: "req.prescriber.first_name", ruleName: "Required: Prescriber First Name",
			fieldPath: "prescriber.first_name", severity: domain.ValidationSeverityError,
			extract: func(d *domain.ParsedOrderData) string { return prescriberOf(d).FirstName },
		},
		{
			ruleKey: "req.prescriber.last_name", ruleName: "Required: Prescriber Last Name",
			fieldPath: "prescriber.last_name", severity: domain.ValidationSeverityError,
			extract: func(d *domain.ParsedOrderData) string { return prescriberOf(d).LastName },
		},
	}
}

// RequiredPersistenceValidators returns the checks that only apply when an
// order is about to be stored.
func RequiredPersistenceValidators() []*requiredFieldValidator {
	return []*requiredFieldValidator{
		{
			ruleKey: "req.patient.mrn", ruleName: "Required: Medical Record Number",
			fieldPath: "patient.medical_record_number", severity: domain.ValidationSeverityError,
			extract: func(d *domain.ParsedOrderData) string { return deref(patientOf(d).MedicalRecordNumber) },
		},
		{
			ruleKey: "req.device.name", ruleName: "Required: Device Name",
			fieldPath: "devices[i].name", severity: domain.ValidationSeverityError,
			perItem: true, extractItem: func(dev *domain.ParsedDevice) string { return dev.Name },
		},
		{
			ruleKey: "req.prescriber.npi", ruleName: "Recommended: Prescriber NPI",
			fieldPath: "prescriber.npi", severity: domain.ValidationSeverityWarning,
			extract: func(d *domain.ParsedOrderData) string { return deref(prescriberOf(d).NPI) },
		},
		{
			ruleKey: "req.order.item_name", ruleName: "Recommended: Item Name",
			fieldPath: "item_name", severity: domain.ValidationSeverityWarning,
			extract: func(d *domain.ParsedOrderData) string { return deref(d.ItemName) },
		},
	}
}
