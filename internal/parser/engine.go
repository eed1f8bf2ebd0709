// Package parser turns document text into structured order data using a
// generative model.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"medorders/internal/config"
	"medorders/internal/domain"
	"medorders/internal/port"
)

// Engine implements port.OrderExtractor.
type Engine struct {
	gen    port.TextGenerator
	model  config.ModelConfig
	schema *jsonschema.Schema
	log    zerolog.Logger
}

var _ port.OrderExtractor = (*Engine)(nil)

// NewEngine creates an extraction engine for the given model.
func NewEngine(gen port.TextGenerator, model config.ModelConfig, log zerolog.Logger) (*Engine, error) {
	if model.Temperature < 0 || model.Temperature > 1 {
		return nil, fmt.Errorf("parser.NewEngine: temperature %v outside [0,1]", model.Temperature)
	}
	schema, err := CompileOrderSchema()
	if err != nil {
		return nil, fmt.Errorf("parser.NewEngine: %w", err)
	}
	return &Engine{
		gen:    gen,
		model:  model,
		schema: schema,
		log:    log.With().Str("component", "parser").Logger(),
	}, nil
}

// Extract sends text to the model and returns validated order data. The model
// is called exactly once; there are no retries.
func (e *Engine) Extract(ctx context.Context, text string) (*domain.ParsedOrderData, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("parser.Extract: %w", domain.ErrExtractionInsufficient)
	}

	start := time.Now()
	resp, err := e.gen.Generate(ctx, port.GenerateRequest{
		System:      systemPrompt,
		Prompt:      BuildOrderPrompt(text),
		Model:       e.model.Name,
		Temperature: e.model.Temperature,
		JSON:        true,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrModelTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrModelTimeout, err)
		}
		e.log.Error().Err(err).Str("model", e.model.Name).Msg("model call failed")
		return nil, fmt.Errorf("parser.Extract: %w", err)
	}

	data, notes, err := e.decode(resp.Content)
	if err != nil {
		e.log.Warn().Err(err).Str("model", e.model.Name).Msg("model output rejected")
		return nil, fmt.Errorf("parser.Extract: %w", err)
	}
	notes = append(notes, guardIdentifiers(data, text)...)

	modelName := resp.Model
	if modelName == "" {
		modelName = e.model.Name
	}
	data.ExtractionNotes = strings.Join(append(
		[]string{fmt.Sprintf("extracted with %s model %s", e.model.Provider, modelName)}, notes...,
	), "; ")

	e.log.Info().
		Str("model", modelName).
		Int("devices", len(data.Devices)).
		Int("notes", len(notes)).
		Dur("duration", time.Since(start)).
		Msg("order extracted")
	return data, nil
}

// decode strips fences, coerces the reply into the canonical shape and
// validates it against the schema. Required fields are not enforced here;
// a preview may legitimately lack them.
func (e *Engine) decode(content string) (*domain.ParsedOrderData, []string, error) {
	body := stripCodeFences(content)

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, &domain.SchemaViolationError{
			Fields: []domain.FieldIssue{{Field: "$", Message: "model output is not valid JSON: " + err.Error()}},
			Raw:    truncate(content, 500),
		}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, &domain.SchemaViolationError{
			Fields: []domain.FieldIssue{{Field: "$", Message: "expected a JSON object, got " + typeName(raw)}},
			Raw:    truncate(content, 500),
		}
	}

	c := &coercer{}
	canonical := c.payload(obj)
	if err := e.schema.Validate(canonical); err != nil {
		return nil, nil, &domain.SchemaViolationError{Fields: schemaIssues(err), Raw: truncate(content, 500)}
	}

	encoded, err := json.Marshal(canonical)
	if err != nil {
		return nil, nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	var data domain.ParsedOrderData
	if err := json.NewDecoder(bytes.NewReader(encoded)).Decode(&data); err != nil {
		return nil, nil, &domain.SchemaViolationError{
			Fields: []domain.FieldIssue{{Field: "$", Message: err.Error()}},
			Raw:    truncate(content, 500),
		}
	}
	return &data, c.notes, nil
}

// stripCodeFences removes markdown fences and any prose around the outermost
// JSON object.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if strings.HasPrefix(s, "{") {
		return s
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
