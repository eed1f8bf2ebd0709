package domain

// FileType represents the allowed upload types.
type FileType string

const (
	FileTypePDF FileType = "pdf"
)

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf": FileTypePDF,
}

// TextSource records where the text of a document came from.
type TextSource string

const (
	TextSourceDirect TextSource = "direct"
	TextSourceOCR    TextSource = "ocr"
)

// PipelineState is a step of the document intake state machine.
type PipelineState string

const (
	StateReceived          PipelineState = "received"
	StateTextExtracted     PipelineState = "text_extracted"
	StateOCRRequired       PipelineState = "ocr_required"
	StateTextReady         PipelineState = "text_ready"
	StateExtracted         PipelineState = "extracted"
	StatePreviewReturned   PipelineState = "preview_returned"
	StateResolving         PipelineState = "resolving"
	StateResolved          PipelineState = "resolved"
	StateDuplicatesChecked PipelineState = "duplicates_checked"
	StatePersisted         PipelineState = "persisted"
	StateExtractionFailed  PipelineState = "extraction_failed"
	StateValidationFailed  PipelineState = "validation_failed"
	StatePersistenceFailed PipelineState = "persistence_failed"
)

var pipelineTransitions = map[PipelineState][]PipelineState{
	StateReceived:          {StateTextExtracted, StateExtractionFailed},
	StateTextExtracted:     {StateTextReady, StateOCRRequired},
	StateOCRRequired:       {StateTextReady, StateExtractionFailed},
	StateTextReady:         {StateExtracted, StateExtractionFailed, StateValidationFailed},
	StateExtracted:         {StatePreviewReturned, StateResolving, StateValidationFailed},
	StateResolving:         {StateResolved, StateValidationFailed, StatePersistenceFailed},
	StateResolved:          {StateDuplicatesChecked, StatePersistenceFailed},
	StateDuplicatesChecked: {StatePersisted, StatePersistenceFailed},
}

// CanTransition reports whether the state machine allows moving from one
// state to another.
func (s PipelineState) CanTransition(to PipelineState) bool {
	for _, next := range pipelineTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s PipelineState) IsTerminal() bool {
	return len(pipelineTransitions[s]) == 0
}

// IsFailure reports whether the state is one of the failure states.
func (s PipelineState) IsFailure() bool {
	switch s {
	case StateExtractionFailed, StateValidationFailed, StatePersistenceFailed:
		return true
	}
	return false
}

// Duplicate detection reasons.
const (
	ReasonExactItemName   = "exact item name match"
	ReasonSimilarItemName = "similar item name"
	ReasonQuantityMatch   = "quantity match"
)

// ValidationSeverity controls whether a failed rule blocks the data.
type ValidationSeverity string

const (
	ValidationSeverityError   ValidationSeverity = "error"
	ValidationSeverityWarning ValidationSeverity = "warning"
)

// ValidationRuleType classifies built-in validation rules.
type ValidationRuleType string

const (
	ValidationRuleRequired ValidationRuleType = "required"
	ValidationRuleRegex    ValidationRuleType = "regex"
	ValidationRuleRange    ValidationRuleType = "range"
)

// FieldValidationStatus is the per-field outcome shown to reviewers.
type FieldValidationStatus string

const (
	FieldStatusValid   FieldValidationStatus = "valid"
	FieldStatusInvalid FieldValidationStatus = "invalid"
	FieldStatusUnsure  FieldValidationStatus = "unsure"
)
