package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medorders/internal/domain"
	"medorders/internal/port"
	"medorders/internal/validator"
)

// PipelineConfig bounds the slow external steps of a run. Zero means no
// deadline beyond the caller's context.
type PipelineConfig struct {
	OCRTimeout   time.Duration
	ModelTimeout time.Duration
}

// PreviewResult is returned by Pipeline.Preview. Nothing is persisted.
type PreviewResult struct {
	Data          *domain.ParsedOrderData          `json:"data"`
	TextSource    domain.TextSource                `json:"text_source"`
	FieldStatuses map[string]*validator.FieldStatus `json:"field_statuses"`
	Trace         []domain.PipelineState           `json:"trace"`
}

// IntakeService turns uploaded documents into previews or stored orders.
type IntakeService interface {
	Preview(ctx context.Context, doc domain.RawDocument) (*PreviewResult, error)
	Ingest(ctx context.Context, doc domain.RawDocument) (*domain.OrderPersistResult, error)
}

var _ IntakeService = (*Pipeline)(nil)

// Pipeline drives one document from raw bytes to a preview or a persisted
// order. Every call is an independent run with its own state trace.
type Pipeline struct {
	text      port.TextExtractor
	ocr       port.OCREngine
	extractor port.OrderExtractor
	persister *Persister
	rules     *validator.Registry
	cfg       PipelineConfig
	log       zerolog.Logger
}

// NewPipeline creates a Pipeline. ocr may be nil, in which case documents
// without a text layer fail with domain.ErrOCRUnavailable.
func NewPipeline(
	text port.TextExtractor,
	ocr port.OCREngine,
	extractor port.OrderExtractor,
	persister *Persister,
	cfg PipelineConfig,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		text:      text,
		ocr:       ocr,
		extractor: extractor,
		persister: persister,
		rules:     validator.NewPersistenceRegistry(),
		cfg:       cfg,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// Preview extracts order data from doc without touching the entity store.
func (p *Pipeline) Preview(ctx context.Context, doc domain.RawDocument) (*PreviewResult, error) {
	r := newRun()
	data, err := p.extract(ctx, doc, r)
	if err != nil {
		return nil, p.failed(doc, r, err)
	}
	if err := r.advance(domain.StatePreviewReturned); err != nil {
		return nil, p.failed(doc, r, r.fail(domain.StateValidationFailed, err))
	}
	p.log.Info().Str("file", doc.Filename).Str("text_source", string(data.TextSource)).Msg("preview returned")
	return &PreviewResult{
		Data:          data,
		TextSource:    data.TextSource,
		FieldStatuses: validator.ComputeFieldStatuses(p.rules.Run(ctx, data)),
		Trace:         r.snapshot(),
	}, nil
}

// Ingest extracts order data from doc and persists it.
func (p *Pipeline) Ingest(ctx context.Context, doc domain.RawDocument) (*domain.OrderPersistResult, error) {
	r := newRun()
	data, err := p.extract(ctx, doc, r)
	if err != nil {
		return nil, p.failed(doc, r, err)
	}

	result, err := p.persister.Persist(ctx, data, r.advance)
	if err != nil {
		state := domain.StatePersistenceFailed
		if domain.Classify(err) == domain.ClassData {
			state = domain.StateValidationFailed
		}
		return nil, p.failed(doc, r, r.fail(state, err))
	}
	if err := r.advance(domain.StatePersisted); err != nil {
		return nil, p.failed(doc, r, r.fail(domain.StatePersistenceFailed, err))
	}
	p.log.Info().
		Str("file", doc.Filename).
		Int64("order_id", result.Order.ID).
		Bool("has_duplicates", result.HasDuplicates).
		Msg("document ingested")
	return result, nil
}

// extract runs the text stages and the model. OCR runs only when the direct
// text is insufficient, and at most once.
func (p *Pipeline) extract(ctx context.Context, doc domain.RawDocument, r *run) (*domain.ParsedOrderData, error) {
	direct, err := p.text.Extract(ctx, doc)
	if err != nil {
		return nil, r.fail(domain.StateExtractionFailed, err)
	}
	if err := r.advance(domain.StateTextExtracted); err != nil {
		return nil, r.fail(domain.StateExtractionFailed, err)
	}

	text, source := direct.Text, domain.TextSourceDirect
	if !direct.Sufficient {
		if err := r.advance(domain.StateOCRRequired); err != nil {
			return nil, r.fail(domain.StateExtractionFailed, err)
		}
		p.log.Debug().Str("file", doc.Filename).Int("chars", direct.Chars).Msg("direct text insufficient, running OCR")
		text, err = p.recognize(ctx, doc)
		if err != nil {
			return nil, r.fail(domain.StateExtractionFailed, err)
		}
		source = domain.TextSourceOCR
	}
	if err := r.advance(domain.StateTextReady); err != nil {
		return nil, r.fail(domain.StateExtractionFailed, err)
	}

	mctx, cancel := withOptionalTimeout(ctx, p.cfg.ModelTimeout)
	defer cancel()
	data, err := p.extractor.Extract(mctx, text)
	if err != nil {
		if errors.Is(mctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrModelTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrModelTimeout, err)
		}
		state := domain.StateExtractionFailed
		if errors.Is(err, domain.ErrValidationFailed) {
			state = domain.StateValidationFailed
		}
		return nil, r.fail(state, err)
	}
	data.TextSource = source
	if err := r.advance(domain.StateExtracted); err != nil {
		return nil, r.fail(domain.StateExtractionFailed, err)
	}
	return data, nil
}

func (p *Pipeline) recognize(ctx context.Context, doc domain.RawDocument) (string, error) {
	if p.ocr == nil {
		return "", fmt.Errorf("pipeline: no OCR engine configured: %w", domain.ErrOCRUnavailable)
	}
	octx, cancel := withOptionalTimeout(ctx, p.cfg.OCRTimeout)
	defer cancel()

	res, err := p.ocr.Recognize(octx, doc)
	if err != nil {
		if errors.Is(octx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrOCRTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrOCRTimeout, err)
		}
		return "", err
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", domain.ErrOCRFailed
	}
	return res.Text, nil
}

func (p *Pipeline) failed(doc domain.RawDocument, r *run, err error) error {
	p.log.Warn().
		Err(err).
		Str("file", doc.Filename).
		Str("state", string(r.state)).
		Str("class", string(domain.Classify(err))).
		Msg("pipeline failed")
	return err
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// run tracks the state of one pipeline invocation.
type run struct {
	state domain.PipelineState
	trace []domain.PipelineState
}

func newRun() *run {
	return &run{state: domain.StateReceived, trace: []domain.PipelineState{domain.StateReceived}}
}

func (r *run) advance(to domain.PipelineState) error {
	if !r.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.state, to)
	}
	r.state = to
	r.trace = append(r.trace, to)
	return nil
}

// fail moves the run into a terminal failure state and wraps err. If the
// preferred state is not reachable the first reachable failure state wins.
func (r *run) fail(preferred domain.PipelineState, err error) error {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	for _, s := range []domain.PipelineState{preferred, domain.StatePersistenceFailed, domain.StateValidationFailed, domain.StateExtractionFailed} {
		if r.advance(s) == nil {
			break
		}
	}
	return &domain.PipelineError{State: r.state, Trace: r.snapshot(), Err: err}
}

func (r *run) snapshot() []domain.PipelineState {
	out := make([]domain.PipelineState, len(r.trace))
	copy(out, r.trace)
	return out
}
