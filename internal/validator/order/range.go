package order

import (
	"context"
	"fmt"
	"strconv"

	"medorders/internal/domain"
)

// rangeValidator checks numeric fields against inclusive bounds.
type rangeValidator struct {
	ruleKey  string
	ruleName string
	severity domain.ValidationSeverity
	values   func(*domain.ParsedOrderData) []rangeValue
	min      int64
	max      int64 // 0 means unbounded
}

type rangeValue struct {
	fieldPath string
	value     *int64
}

func (v *rangeValidator) RuleKey() string                     { return v.ruleKey }
func (v *rangeValidator) RuleName() string                    { return v.ruleName }
func (v *rangeValidator) RuleType() domain.ValidationRuleType { return domain.ValidationRuleRange }
func (v *rangeValidator) Severity() domain.ValidationSeverity { return v.severity }

func (v *rangeValidator) Validate(_ context.Context, data *domain.ParsedOrderData) []ValidationResult {
	var results []ValidationResult
	for _, rv := range v.values(data) {
		if rv.value == nil {
			continue
		}
		n := *rv.value
		passed := n >= v.min && (v.max == 0 || n <= v.max)
		expected := fmt.Sprintf(">= %d", v.min)
		if v.max != 0 {
			expected = fmt.Sprintf("between %d and %d", v.min, v.max)
		}
		msg := fmt.Sprintf("%s is within range", rv.fieldPath)
		if !passed {
			msg = fmt.Sprintf("%s must be %s", rv.fieldPath, expected)
		}
		results = append(results, ValidationResult{
			Passed: passed, FieldPath: rv.fieldPath,
			ExpectedValue: expected, ActualValue: strconv.FormatInt(n, 10), Message: msg,
		})
	}
	return results
}

func intValue(p *int) *int64 {
	if p == nil {
		return nil
	}
	n := int64(*p)
	return &n
}

// RangeValidators returns the numeric bound checks.
func RangeValidators() []*rangeValidator {
	return []*rangeValidator{
		{
			ruleKey: "range.patient.age", ruleName: "Range: Patient Age",
			severity: domain.ValidationSeverityError, min: 0, max: 150,
			values: func(d *domain.ParsedOrderData) []rangeValue {
				return []rangeValue{{"patient.age", intValue(patientOf(d).Age)}}
			},
		},
		{
			ruleKey: "range.order.item_quantity", ruleName: "Range: Item Quantity",
			severity: domain.ValidationSeverityError, min: 1,
			values: func(d *domain.ParsedOrderData) []rangeValue {
				out := []rangeValue{{"item_quantity", intValue(d.ItemQuantity)}}
				for i := range d.Devices {
					q := d.Devices[i].Quantity
					out = append(out, rangeValue{fmt.Sprintf("devices[%d].quantity", i), intValue(&q)})
				}
				return out
			},
		},
		{
			ruleKey: "range.order.costs", ruleName: "Range: Order Costs",
			severity: domain.ValidationSeverityError, min: 0,
			values: func(d *domain.ParsedOrderData) []rangeValue {
				return []rangeValue{
					{"order_cost_raw", d.OrderCostRaw},
					{"order_cost_to_insurer", d.OrderCostToInsurer},
				}
			},
		},
	}
}
