package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"medorders/internal/domain"
)

var (
	nullishValues = map[string]bool{
		"": true, "null": true, "none": true, "n/a": true, "na": true,
		"unknown": true, "not found": true, "not provided": true, "-": true,
	}
	leadingNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// coercer normalizes a raw model reply into the canonical payload shape and
// records every value it had to drop.
type coercer struct {
	notes []string
}

func (c *coercer) dropf(path, format string, args ...any) {
	c.notes = append(c.notes, fmt.Sprintf("dropped %s: %s", path, fmt.Sprintf(format, args...)))
}

// payload returns the canonical form of raw. Values that are structurally
// wrong for required sections are left untouched so the schema rejects them.
func (c *coercer) payload(raw map[string]any) map[string]any {
	out := map[string]any{
		"patient":    c.section(raw["patient"], c.patient),
		"prescriber": c.section(raw["prescriber"], c.prescriber),
		"devices":    c.devices(raw["devices"]),
	}

	order := raw
	if nested, ok := raw["order"]; ok && nested != nil {
		if m, isMap := nested.(map[string]any); isMap {
			order = mergeOrder(raw, m)
		} else {
			c.dropf("order", "expected an object, got %s", typeName(nested))
		}
	}
	out["item_name"] = c.text("item_name", order["item_name"])
	out["reason_prescribed"] = c.text("reason_prescribed", order["reason_prescribed"])
	out["item_quantity"] = c.integer("item_quantity", order["item_quantity"], 1, 0)
	out["order_cost_raw"] = c.cents("order_cost_raw", order["order_cost_raw"])
	out["order_cost_to_insurer"] = c.cents("order_cost_to_insurer", order["order_cost_to_insurer"])
	out["confidence_score"] = c.confidence(raw["confidence_score"])
	return out
}

// mergeOrder lets top-level order fields fill gaps in the nested order object.
func mergeOrder(top, nested map[string]any) map[string]any {
	merged := make(map[string]any, len(nested))
	for _, k := range []string{"item_name", "item_quantity", "order_cost_raw", "order_cost_to_insurer", "reason_prescribed"} {
		if v, ok := nested[k]; ok && v != nil {
			merged[k] = v
		} else {
			merged[k] = top[k]
		}
	}
	return merged
}

func (c *coercer) section(v any, fn func(map[string]any) map[string]any) any {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	return fn(m)
}

func (c *coercer) patient(m map[string]any) map[string]any {
	return map[string]any{
		"first_name":            name(m["first_name"]),
		"last_name":             name(m["last_name"]),
		"medical_record_number": c.identifier("patient.medical_record_number", m["medical_record_number"]),
		"age":                   c.integer("patient.age", m["age"], 0, 150),
	}
}

func (c *coercer) prescriber(m map[string]any) map[string]any {
	npi := c.identifier("prescriber.npi", m["npi"])
	if s, ok := npi.(string); ok {
		npi = compactDigits(s)
	}
	return map[string]any{
		"first_name":     name(m["first_name"]),
		"last_name":      name(m["last_name"]),
		"npi":            npi,
		"phone_number":   c.text("prescriber.phone_number", m["phone_number"]),
		"email":          c.text("prescriber.email", m["email"]),
		"clinic_name":    c.text("prescriber.clinic_name", m["clinic_name"]),
		"clinic_address": c.text("prescriber.clinic_address", m["clinic_address"]),
	}
}

func (c *coercer) devices(v any) any {
	switch d := v.(type) {
	case nil:
		return []any{}
	case map[string]any:
		c.notes = append(c.notes, "devices was a single object, wrapped in a list")
		return []any{c.device(0, d)}
	case []any:
		out := make([]any, len(d))
		for i, item := range d {
			if m, ok := item.(map[string]any); ok {
				out[i] = c.device(i, m)
			} else {
				out[i] = item
			}
		}
		return out
	default:
		return v
	}
}

func (c *coercer) device(i int, m map[string]any) map[string]any {
	path := fmt.Sprintf("devices[%d]", i)
	out := map[string]any{
		"sku":      c.identifier(path+".sku", m["sku"]),
		"quantity": json.Number("1"),
	}
	if n, ok := m["name"]; ok {
		out["name"] = name(n)
	}
	if q := c.integer(path+".quantity", m["quantity"], 1, 0); q != nil {
		out["quantity"] = q
	}
	return out
}

// name trims strings and maps null-like values to "" so the required-name
// rules report them. Non-string values pass through for the schema to reject.
func name(v any) any {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		s = strings.TrimSpace(s)
		if nullishValues[strings.ToLower(s)] {
			return ""
		}
		return s
	default:
		return v
	}
}

func (c *coercer) text(path string, v any) any {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		s = strings.TrimSpace(s)
		if nullishValues[strings.ToLower(s)] {
			return nil
		}
		return s
	case json.Number:
		return s.String()
	default:
		c.dropf(path, "expected text, got %s", typeName(v))
		return nil
	}
}

func (c *coercer) identifier(path string, v any) any {
	switch s := v.(type) {
	case json.Number:
		return s.String()
	default:
		return c.text(path, v)
	}
}

// integer accepts numbers and strings such as "45 years" or "2x". A zero max
// means no upper bound.
func (c *coercer) integer(path string, v any, lo, hi int64) any {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			c.dropf(path, "not a number: %s", n)
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if nullishValues[strings.ToLower(s)] {
			return nil
		}
		if strings.HasPrefix(s, "-") {
			c.dropf(path, "negative value %q", s)
			return nil
		}
		m := leadingNumber.FindString(s)
		if m == "" {
			c.dropf(path, "no number in %q", s)
			return nil
		}
		f, _ = strconv.ParseFloat(m, 64)
	default:
		c.dropf(path, "expected a number, got %s", typeName(v))
		return nil
	}

	if f != math.Trunc(f) {
		c.dropf(path, "%v is not a whole number", f)
		return nil
	}
	i := int64(f)
	if i < lo || (hi > 0 && i > hi) {
		c.dropf(path, "%d is out of range", i)
		return nil
	}
	return json.Number(strconv.FormatInt(i, 10))
}

func (c *coercer) cents(path string, v any) any {
	var cents int64
	switch n := v.(type) {
	case nil:
		return nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			c.dropf(path, "not an amount: %s", n)
			return nil
		}
		cents, err = domain.DecimalToCents(d)
		if err != nil {
			c.dropf(path, "amount too large: %s", n)
			return nil
		}
	case string:
		if nullishValues[strings.ToLower(strings.TrimSpace(n))] {
			return nil
		}
		parsed, err := domain.ParseCents(n)
		if errors.Is(err, domain.ErrAmountTooLarge) {
			c.dropf(path, "amount too large: %q", n)
			return nil
		}
		if err != nil {
			c.dropf(path, "not an amount: %q", n)
			return nil
		}
		cents = parsed
	default:
		c.dropf(path, "expected an amount, got %s", typeName(v))
		return nil
	}
	if cents < 0 {
		c.dropf(path, "negative amount")
		return nil
	}
	return json.Number(strconv.FormatInt(cents, 10))
}

func (c *coercer) confidence(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		if v != nil {
			c.dropf("confidence_score", "expected a number, got %s", typeName(v))
		}
		return nil
	}
	f, err := n.Float64()
	if err != nil || f < 0 || f > 1 {
		c.dropf("confidence_score", "%s is outside [0,1]", n)
		return nil
	}
	return n
}

// compactDigits removes spaces and dashes from identifiers that are
// otherwise all digits, e.g. "123-456-7890".
func compactDigits(s string) string {
	stripped := strings.NewReplacer(" ", "", "-", "").Replace(s)
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return s
		}
	}
	return stripped
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
