package port

import (
	"context"

	"medorders/internal/domain"
)

// TextResult is the outcome of direct text extraction.
type TextResult struct {
	Text       string
	Pages      int
	Chars      int
	Sufficient bool // trimmed text reached the configured minimum
}

// TextExtractor pulls embedded text out of a document without OCR.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.RawDocument) (*TextResult, error)
}

// OCRResult is the recognized text of every rasterized page.
type OCRResult struct {
	Text  string
	Pages int
}

// OCREngine rasterizes a document and recognizes its text.
type OCREngine interface {
	Recognize(ctx context.Context, doc domain.RawDocument) (*OCRResult, error)
}

// GenerateRequest is a single prompt sent to a generative model.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	JSON        bool // ask the model for a JSON object response
}

// GenerateResponse is the raw completion returned by the model.
type GenerateResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TextGenerator abstracts a generative model endpoint.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// OrderExtractor turns document text into structured order data.
type OrderExtractor interface {
	Extract(ctx context.Context, text string) (*domain.ParsedOrderData, error)
}
