package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound                = errors.New("resource not found")
	ErrUnsupportedFileType     = errors.New("unsupported file type")
	ErrFileTooLarge            = errors.New("file exceeds maximum allowed size")
	ErrDocumentUnreadable      = errors.New("document is not a readable PDF")
	ErrExtractionInsufficient  = errors.New("document contains too little text to extract an order")
	ErrOCRUnavailable          = errors.New("OCR engine is not installed or not reachable")
	ErrOCRFailed               = errors.New("OCR produced no usable text")
	ErrOCRTimeout              = errors.New("OCR timed out")
	ErrModelUnavailable        = errors.New("extraction model is unavailable")
	ErrModelNotFound           = errors.New("extraction model not found")
	ErrModelTimeout            = errors.New("extraction model timed out")
	ErrSchemaViolation         = errors.New("model output does not match the order schema")
	ErrValidationFailed        = errors.New("order data failed validation")
	ErrMissingNaturalKey       = errors.New("natural key is required")
	ErrEntityConflict          = errors.New("entity natural key conflict")
	ErrPersistenceFailed       = errors.New("failed to persist order")
	ErrInvalidOrderInput       = errors.New("invalid order input")
	ErrReferencedEntityMissing = errors.New("referenced entity does not exist")
	ErrInvalidTransition       = errors.New("invalid pipeline state transition")
)

// ErrorClass groups failures by who has to act on them.
type ErrorClass string

const (
	// ClassEnvironment means the operator must fix the runtime environment.
	ClassEnvironment ErrorClass = "environment"
	// ClassDocument means the uploaded document cannot be processed.
	ClassDocument ErrorClass = "document"
	// ClassData means the extracted or submitted data is invalid.
	ClassData     ErrorClass = "data"
	ClassInternal ErrorClass = "internal"
)

// Classify maps an error onto its ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOCRUnavailable),
		errors.Is(err, ErrOCRTimeout),
		errors.Is(err, ErrModelUnavailable),
		errors.Is(err, ErrModelNotFound),
		errors.Is(err, ErrModelTimeout):
		return ClassEnvironment
	case errors.Is(err, ErrDocumentUnreadable),
		errors.Is(err, ErrExtractionInsufficient),
		errors.Is(err, ErrOCRFailed),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrFileTooLarge):
		return ClassDocument
	case errors.Is(err, ErrSchemaViolation),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrMissingNaturalKey),
		errors.Is(err, ErrInvalidOrderInput),
		errors.Is(err, ErrReferencedEntityMissing):
		return ClassData
	default:
		return ClassInternal
	}
}

// FieldIssue describes one field that failed schema or validation checks.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldIssue) String() string {
	return f.Field + ": " + f.Message
}

func joinIssues(fields []FieldIssue) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

// SchemaViolationError is returned when the model payload is malformed or
// does not conform to the order schema.
type SchemaViolationError struct {
	Fields []FieldIssue
	Raw    string
}

func (e *SchemaViolationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrSchemaViolation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSchemaViolation.Error(), joinIssues(e.Fields))
}

func (e *SchemaViolationError) Unwrap() error {
	return ErrSchemaViolation
}

// ValidationError is returned when order data is structurally valid but
// cannot be persisted as-is.
type ValidationError struct {
	Fields []FieldIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationFailed.Error(), joinIssues(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ModelUnavailableError carries enough context for an operator to fix a
// missing or unreachable model.
type ModelUnavailableError struct {
	Provider string
	Endpoint string
	Model    string
	Hint     string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	msg := fmt.Sprintf("%s model %q at %s is unavailable", e.Provider, e.Model, e.Endpoint)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Unwrap exposes both the ModelUnavailable sentinel and the underlying cause,
// which may itself be ErrModelNotFound.
func (e *ModelUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrModelUnavailable}
	}
	return []error{ErrModelUnavailable, e.Err}
}

// PipelineError reports the state a pipeline run failed in together with the
// states it passed through.
type PipelineError struct {
	State PipelineState
	Trace []PipelineState
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed in state %s: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
