package validator

import (
	"context"

	"medorders/internal/domain"
	"medorders/internal/validator/order"
)

// Validator is the interface for a single built-in validation rule.
type Validator interface {
	Validate(ctx context.Context, data *domain.ParsedOrderData) []order.ValidationResult
	RuleKey() string
	RuleName() string
	RuleType() domain.ValidationRuleType
	Severity() domain.ValidationSeverity
}

// RuleResult pairs a result with the rule that produced it.
type RuleResult struct {
	order.ValidationResult
	RuleKey  string
	Severity domain.ValidationSeverity
}

// Report is the outcome of running a set of rules.
type Report struct {
	Results []RuleResult
}

// Errors returns failed error-severity results as field issues.
func (r *Report) Errors() []domain.FieldIssue {
	return r.issues(domain.ValidationSeverityError)
}

// Warnings returns failed warning-severity results as field issues.
func (r *Report) Warnings() []domain.FieldIssue {
	return r.issues(domain.ValidationSeverityWarning)
}

// Valid reports whether no error-severity rule failed.
func (r *Report) Valid() bool {
	return len(r.Errors()) == 0
}

func (r *Report) issues(sev domain.ValidationSeverity) []domain.FieldIssue {
	var out []domain.FieldIssue
	for _, res := range r.Results {
		if !res.Passed && res.Severity == sev {
			out = append(out, domain.FieldIssue{Field: res.FieldPath, Message: res.Message})
		}
	}
	return out
}
