package validator

import (
	"context"
	"sort"

	"medorders/internal/domain"
	"medorders/internal/validator/order"
)

// Registry maps rule keys to Validator implementations.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// NewPersistenceRegistry returns the rules applied before an order is stored.
func NewPersistenceRegistry() *Registry {
	r := NewRegistry()
	for _, rule := range order.PersistenceRules() {
		r.Register(rule)
	}
	return r
}

// Register adds a validator to the registry.
func (r *Registry) Register(v Validator) {
	r.validators[v.RuleKey()] = v
}

// Get returns the validator for a given rule key, or nil if not found.
func (r *Registry) Get(key string) Validator {
	return r.validators[key]
}

// All returns all registered validators ordered by rule key.
func (r *Registry) All() []Validator {
	out := make([]Validator, 0, len(r.validators))
	for _, v := range r.validators {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleKey() < out[j].RuleKey() })
	return out
}

// Run applies every registered rule to data.
func (r *Registry) Run(ctx context.Context, data *domain.ParsedOrderData) *Report {
	report := &Report{}
	for _, v := range r.All() {
		for _, res := range v.Validate(ctx, data) {
			report.Results = append(report.Results, RuleResult{
				ValidationResult: res,
				RuleKey:          v.RuleKey(),
				Severity:         v.Severity(),
			})
		}
	}
	return report
}
