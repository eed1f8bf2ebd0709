package validator

import (
	"medorders/internal/domain"
)

// FieldStatus represents the computed validation state for a single field path.
type FieldStatus struct {
	Status   domain.FieldValidationStatus `json:"status"`
	Messages []string                     `json:"messages"`
}

// ComputeFieldStatuses derives per-field statuses from a report so reviewers
// can see which extracted values need attention. A failed error rule makes a
// field invalid; a failed warning rule makes it unsure.
func ComputeFieldStatuses(report *Report) map[string]*FieldStatus {
	statuses := make(map[string]*FieldStatus)
	for _, res := range report.Results {
		fs, ok := statuses[res.FieldPath]
		if !ok {
			fs = &FieldStatus{Status: domain.FieldStatusValid}
			statuses[res.FieldPath] = fs
		}
		if res.Passed {
			continue
		}
		fs.Messages = append(fs.Messages, res.Message)
		switch res.Severity {
		case domain.ValidationSeverityError:
			fs.Status = domain.FieldStatusInvalid
		case domain.ValidationSeverityWarning:
			if fs.Status != domain.FieldStatusInvalid {
				fs.Status = domain.FieldStatusUnsure
			}
		}
	}
	return statuses
}
