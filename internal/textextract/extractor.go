// Package textextract reads the embedded text layer of PDF documents.
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"medorders/internal/domain"
	"medorders/internal/port"
)

// DefaultMinChars is the trimmed character count below which a document is
// treated as image-only.
const DefaultMinChars = 10

const pageSeparator = "\f"

// Extractor implements port.TextExtractor on top of ledongthuc/pdf.
type Extractor struct {
	minChars int
	log      zerolog.Logger
}

// New creates an Extractor. A minChars below 1 falls back to DefaultMinChars.
func New(minChars int, log zerolog.Logger) *Extractor {
	if minChars < 1 {
		minChars = DefaultMinChars
	}
	return &Extractor{minChars: minChars, log: log.With().Str("component", "textextract").Logger()}
}

var _ port.TextExtractor = (*Extractor)(nil)

// Extract returns the document's text layer. A readable PDF with little or
// no text yields Sufficient=false and no error; bytes that cannot be parsed
// as a PDF yield domain.ErrDocumentUnreadable.
func (e *Extractor) Extract(ctx context.Context, doc domain.RawDocument) (*port.TextResult, error) {
	if len(doc.Bytes) == 0 {
		return nil, fmt.Errorf("textextract.Extract: empty document: %w", domain.ErrDocumentUnreadable)
	}

	pages, text, err := e.readText(ctx, doc.Bytes)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	chars := utf8.RuneCountInString(trimmed)
	res := &port.TextResult{
		Text:       trimmed,
		Pages:      pages,
		Chars:      chars,
		Sufficient: chars >= e.minChars,
	}

	e.log.Debug().
		Str("filename", doc.Filename).
		Int("pages", pages).
		Int("chars", chars).
		Bool("sufficient", res.Sufficient).
		Msg("text layer extracted")
	return res, nil
}

// readText walks every page. The PDF library panics on some malformed
// content streams, so panics are reported as unreadable documents.
func (e *Extractor) readText(ctx context.Context, content []byte) (pages int, text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("textextract.Extract: malformed pdf (%v): %w", r, domain.ErrDocumentUnreadable)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, "", fmt.Errorf("textextract.Extract: open pdf: %v: %w", err, domain.ErrDocumentUnreadable)
	}

	var b strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return 0, "", fmt.Errorf("textextract.Extract: %w", err)
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			e.log.Warn().Int("page", i).Err(perr).Msg("skipping unreadable page")
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageSeparator)
		}
		b.WriteString(pageText)
	}
	return total, b.String(), nil
}
