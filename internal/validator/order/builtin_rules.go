package order

import (
	"context"

	"medorders/internal/domain"
)

// Rule is implemented by every built-in order validator.
type Rule interface {
	Validate(ctx context.Context, data *domain.ParsedOrderData) []ValidationResult
	RuleKey() string
	RuleName() string
	RuleType() domain.ValidationRuleType
	Severity() domain.ValidationSeverity
}

// PersistenceRules are the checks applied before an order is stored. Preview
// runs them too, but only to report per-field statuses.
func PersistenceRules() []Rule {
	var rules []Rule
	for _, v := range RequiredNameValidators() {
		rules = append(rules, v)
	}
	for _, v := range RequiredPersistenceValidators() {
		rules = append(rules, v)
	}
	for _, v := range FormatValidators() {
		rules = append(rules, v)
	}
	for _, v := range RangeValidators() {
		rules = append(rules, v)
	}
	return rules
}
