package order

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"medorders/internal/domain"
)

var (
	npiPattern   = regexp.MustCompile(`^\d{10}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// formatValidator checks a field against a regex or length rule.
type formatValidator struct {
	ruleKey   string
	ruleName  string
	fieldPath string
	severity  domain.ValidationSeverity
	validate  func(*domain.ParsedOrderData) []ValidationResult
}

func (v *formatValidator) RuleKey() string                     { return v.ruleKey }
func (v *formatValidator) RuleName() string                    { return v.ruleName }
func (v *formatValidator) RuleType() domain.ValidationRuleType { return domain.ValidationRuleRegex }
func (v *formatValidator) Severity() domain.ValidationSeverity { return v.severity }

func (v *formatValidator) Validate(_ context.Context, data *domain.ParsedOrderData) []ValidationResult {
	return v.validate(data)
}

func regexCheck(fieldPath, value, expected string, re *regexp.Regexp) ValidationResult {
	if value == "" {
		return ValidationResult{
			Passed: true, FieldPath: fieldPath,
			ExpectedValue: expected, ActualValue: value,
			Message: fmt.Sprintf("%s is empty, skipping format check", fieldPath),
		}
	}
	passed := re.MatchString(value)
	msg := fmt.Sprintf("%s matches expected format", fieldPath)
	if !passed {
		msg = fmt.Sprintf("%s must be %s", fieldPath, expected)
	}
	return ValidationResult{
		Passed: passed, FieldPath: fieldPath,
		ExpectedValue: expected, ActualValue: value, Message: msg,
	}
}

func lengthCheck(fieldPath, value string, maxLen int) ValidationResult {
	n := utf8.RuneCountInString(value)
	passed := n <= maxLen
	msg := fmt.Sprintf("%s length is within %d characters", fieldPath, maxLen)
	if !passed {
		msg = fmt.Sprintf("%s must be at most %d characters, got %d", fieldPath, maxLen, n)
	}
	return ValidationResult{
		Passed: passed, FieldPath: fieldPath,
		ExpectedValue: fmt.Sprintf("<= %d characters", maxLen), ActualValue: value, Message: msg,
	}
}

// FormatValidators returns the format checks applied before persistence.
func FormatValidators() []*formatValidator {
	return []*formatValidator{
		{
			ruleKey: "fmt.prescriber.npi", ruleName: "Format: Prescriber NPI",
			fieldPath: "prescriber.npi", severity: domain.ValidationSeverityError,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				return []ValidationResult{regexCheck("prescriber.npi", deref(prescriberOf(d).NPI), "exactly 10 digits", npiPattern)}
			},
		},
		{
			ruleKey: "fmt.prescriber.email", ruleName: "Format: Prescriber Email",
			fieldPath: "prescriber.email", severity: domain.ValidationSeverityWarning,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				return []ValidationResult{regexCheck("prescriber.email", deref(prescriberOf(d).Email), "an email address", emailPattern)}
			},
		},
		{
			ruleKey: "fmt.patient.mrn_length", ruleName: "Format: Medical Record Number Length",
			fieldPath: "patient.medical_record_number", severity: domain.ValidationSeverityError,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				return []ValidationResult{lengthCheck("patient.medical_record_number", deref(patientOf(d).MedicalRecordNumber), 50)}
			},
		},
		{
			ruleKey: "fmt.names_length", ruleName: "Format: Name Length",
			fieldPath: "*.name", severity: domain.ValidationSeverityError,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				p, pr := patientOf(d), prescriberOf(d)
				return []ValidationResult{
					lengthCheck("patient.first_name", p.FirstName, 100),
					lengthCheck("patient.last_name", p.LastName, 100),
					lengthCheck("prescriber.first_name", pr.FirstName, 100),
					lengthCheck("prescriber.last_name", pr.LastName, 100),
				}
			},
		},
		{
			ruleKey: "fmt.order.item_name_length", ruleName: "Format: Item Name Length",
			fieldPath: "item_name", severity: domain.ValidationSeverityError,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				return []ValidationResult{lengthCheck("item_name", deref(d.ItemName), 255)}
			},
		},
		{
			ruleKey: "fmt.devices.length", ruleName: "Format: Device Name and SKU Length",
			fieldPath: "devices[*]", severity: domain.ValidationSeverityError,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				out := make([]ValidationResult, 0, 2*len(d.Devices))
				for i, dev := range d.Devices {
					out = append(out,
						lengthCheck(fmt.Sprintf("devices[%d].name", i), strings.TrimSpace(dev.Name), 255),
						lengthCheck(fmt.Sprintf("devices[%d].sku", i), strings.TrimSpace(deref(dev.SKU)), 100),
					)
				}
				return out
			},
		},
		{
			ruleKey: "fmt.prescriber.contact_length", ruleName: "Format: Prescriber Contact Length",
			fieldPath: "prescriber.*", severity: domain.ValidationSeverityError,
			validate: func(d *domain.ParsedOrderData) []ValidationResult {
				pr := prescriberOf(d)
				return []ValidationResult{
					lengthCheck("prescriber.phone_number", deref(pr.PhoneNumber), 50),
					lengthCheck("prescriber.email", deref(pr.Email), 255),
					lengthCheck("prescriber.clinic_name", deref(pr.ClinicName), 255),
				}
			},
		},
	}
}
