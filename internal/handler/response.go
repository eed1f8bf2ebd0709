package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medorders/internal/domain"
	"medorders/internal/middleware"
	"medorders/internal/parser"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response. Class, State and Fields
// are set for pipeline and validation failures.
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Class   domain.ErrorClass   `json:"class,omitempty"`
	State   string              `json:"state,omitempty"`
	Fields  []domain.FieldIssue `json:"fields,omitempty"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
// Environment problems are 503, unusable documents and invalid extracted
// data are 422, malformed requests are 400.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported file type; allowed: pdf"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrInvalidOrderInput):
		return http.StatusBadRequest, "INVALID_ORDER_INPUT", "invalid order input"

	case errors.Is(err, domain.ErrOCRUnavailable):
		return http.StatusServiceUnavailable, "OCR_UNAVAILABLE", "OCR engine is not installed or not reachable"
	case errors.Is(err, domain.ErrOCRTimeout):
		return http.StatusServiceUnavailable, "OCR_TIMEOUT", "OCR timed out"
	case errors.Is(err, domain.ErrModelNotFound):
		return http.StatusServiceUnavailable, "MODEL_NOT_FOUND", modelMessage(err, "extraction model not found")
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", modelMessage(err, "extraction model is unavailable")
	case errors.Is(err, domain.ErrModelTimeout):
		return http.StatusServiceUnavailable, "MODEL_TIMEOUT", "extraction model timed out"

	case errors.Is(err, domain.ErrDocumentUnreadable):
		return http.StatusUnprocessableEntity, "DOCUMENT_UNREADABLE", "document is not a readable PDF"
	case errors.Is(err, domain.ErrExtractionInsufficient):
		return http.StatusUnprocessableEntity, "EXTRACTION_INSUFFICIENT", "document contains too little text"
	case errors.Is(err, domain.ErrOCRFailed):
		return http.StatusUnprocessableEntity, "OCR_FAILED", "OCR produced no usable text"

	case errors.Is(err, domain.ErrSchemaViolation):
		return http.StatusUnprocessableEntity, "SCHEMA_VIOLATION", "model output does not match the order schema"
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", "order data failed validation"
	case errors.Is(err, domain.ErrMissingNaturalKey):
		return http.StatusUnprocessableEntity, "MISSING_NATURAL_KEY", "a natural key is required"
	case errors.Is(err, domain.ErrReferencedEntityMissing):
		return http.StatusUnprocessableEntity, "REFERENCED_ENTITY_MISSING", "referenced entity does not exist"

	case errors.Is(err, domain.ErrEntityConflict):
		return http.StatusConflict, "ENTITY_CONFLICT", "entity was created concurrently; retry the request"
	case errors.Is(err, domain.ErrPersistenceFailed):
		return http.StatusInternalServerError, "PERSISTENCE_FAILED", "failed to persist order"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// modelMessage surfaces endpoint, model and hint so an operator can act.
func modelMessage(err error, fallback string) string {
	var mu *domain.ModelUnavailableError
	if errors.As(err, &mu) {
		return mu.Error()
	}
	return fallback
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	apiErr := &APIError{Code: code, Message: msg, Class: domain.Classify(err)}

	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		apiErr.State = string(pe.State)
	}
	var sv *domain.SchemaViolationError
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		apiErr.Fields = ve.Fields
	case errors.As(err, &sv):
		apiErr.Fields = sv.Fields
	}

	var rl *parser.RateLimitError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
	}

	log := middleware.GetLogger(c)
	if status >= 500 {
		log.Error().Err(err).Str("code", code).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("code", code).Msg("request rejected")
	}
	c.JSON(status, APIResponse{Success: false, Error: apiErr})
}

// parsePagination reads offset and limit query params with defaults.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return offset, limit
}
