package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"medorders/internal/domain"
)

func nullable(t string, extra map[string]any) map[string]any {
	m := map[string]any{"type": []any{t, "null"}}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func nameSchema() map[string]any {
	return map[string]any{"type": "string", "maxLength": 100}
}

// orderSchema describes the coerced payload, not the raw model reply.
func orderSchema() map[string]any {
	return map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]any{
			"patient": map[string]any{
				"type": []any{"object", "null"},
				"properties": map[string]any{
					"first_name":            nameSchema(),
					"last_name":             nameSchema(),
					"medical_record_number": nullable("string", map[string]any{"minLength": 1, "maxLength": 50}),
					"age":                   nullable("integer", map[string]any{"minimum": 0, "maximum": 150}),
				},
			},
			"prescriber": map[string]any{
				"type": []any{"object", "null"},
				"properties": map[string]any{
					"first_name":     nameSchema(),
					"last_name":      nameSchema(),
					"npi":            nullable("string", nil),
					"phone_number":   nullable("string", nil),
					"email":          nullable("string", nil),
					"clinic_name":    nullable("string", nil),
					"clinic_address": nullable("string", nil),
				},
			},
			"devices": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"name"},
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"sku":      nullable("string", nil),
						"quantity": map[string]any{"type": "integer", "minimum": 1},
					},
				},
			},
			"item_name":             nullable("string", nil),
			"item_quantity":         nullable("integer", map[string]any{"minimum": 1}),
			"order_cost_raw":        nullable("integer", map[string]any{"minimum": 0}),
			"order_cost_to_insurer": nullable("integer", map[string]any{"minimum": 0}),
			"reason_prescribed":     nullable("string", nil),
			"confidence_score":      nullable("number", map[string]any{"minimum": 0, "maximum": 1}),
		},
	}
}

// CompileOrderSchema compiles the schema used to validate coerced payloads.
func CompileOrderSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(orderSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal order schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("order.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add order schema: %w", err)
	}
	return c.Compile("order.json")
}

// schemaIssues flattens a jsonschema validation error into field issues.
func schemaIssues(err error) []domain.FieldIssue {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []domain.FieldIssue{{Field: "$", Message: err.Error()}}
	}
	seen := map[string]bool{}
	var out []domain.FieldIssue
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			issue := domain.FieldIssue{Field: instancePath(v.InstanceLocation), Message: v.Message}
			if key := issue.String(); !seen[key] {
				seen[key] = true
				out = append(out, issue)
			}
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// instancePath turns "/devices/0/name" into "devices[0].name".
func instancePath(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return "$"
	}
	var b strings.Builder
	for _, part := range strings.Split(loc, "/") {
		if isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
