// Package ocr renders PDF pages to images and recognizes their text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"medorders/internal/domain"
	"medorders/internal/port"
)

// PageRecognizer recognizes the text of a single rendered page image.
type PageRecognizer interface {
	RecognizePage(ctx context.Context, imagePath string) (string, error)
}

// Config controls rasterization.
type Config struct {
	PdftoppmPath string
	DPI          int
	MaxPages     int // 0 means no limit
	Enhance      bool
	TempDir      string // empty uses os.TempDir
}

// Engine implements port.OCREngine with pdftoppm plus a PageRecognizer.
type Engine struct {
	cfg        Config
	runner     Runner
	recognizer PageRecognizer
	enhancer   *Enhancer
	log        zerolog.Logger
}

var _ port.OCREngine = (*Engine)(nil)

// NewEngine creates an OCR engine.
func NewEngine(cfg Config, runner Runner, recognizer PageRecognizer, log zerolog.Logger) *Engine {
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	e := &Engine{
		cfg:        cfg,
		runner:     runner,
		recognizer: recognizer,
		log:        log.With().Str("component", "ocr").Logger(),
	}
	if cfg.Enhance {
		e.enhancer = NewEnhancer()
	}
	return e
}

// PageHeader returns the marker written before the text of page n (1-based).
func PageHeader(n int) string {
	return fmt.Sprintf("\n--- Page %d ---\n", n)
}

// Recognize renders every page of doc and concatenates the recognized text in
// page order. Scratch files live in a private temp dir that is always removed.
func (e *Engine) Recognize(ctx context.Context, doc domain.RawDocument) (*port.OCRResult, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.TempDir, "medorders-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("ocr.Recognize: create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.log.Warn().Str("dir", tmpDir).Err(rmErr).Msg("failed to remove temp dir")
		}
	}()

	input := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(input, doc.Bytes, 0o600); err != nil {
		return nil, fmt.Errorf("ocr.Recognize: write input: %w", err)
	}

	images, err := e.rasterize(ctx, input, filepath.Join(tmpDir, "page"))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	failed := 0
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, e.contextError(err)
		}
		if e.enhancer != nil {
			enhanced, enhErr := e.enhancer.Enhance(img)
			if enhErr != nil {
				e.log.Warn().Int("page", i+1).Err(enhErr).Msg("enhancement failed, using original image")
			} else {
				img = enhanced
			}
		}

		text, recErr := e.recognizer.RecognizePage(ctx, img)
		if recErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, e.contextError(ctxErr)
			}
			if errors.Is(recErr, domain.ErrOCRUnavailable) {
				return nil, recErr
			}
			failed++
			e.log.Warn().Int("page", i+1).Err(recErr).Msg("page recognition failed")
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(PageHeader(i + 1))
		b.WriteString(text)
	}

	if failed == len(images) {
		return nil, fmt.Errorf("ocr.Recognize: all %d pages failed: %w", failed, domain.ErrOCRFailed)
	}
	text := b.String()
	if stripPageHeaders(text) == "" {
		return nil, fmt.Errorf("ocr.Recognize: no text recognized on %d pages: %w", len(images), domain.ErrOCRFailed)
	}

	e.log.Info().
		Str("filename", doc.Filename).
		Int("pages", len(images)).
		Int("failed_pages", failed).
		Msg("ocr completed")
	return &port.OCRResult{Text: text, Pages: len(images)}, nil
}

func (e *Engine) rasterize(ctx context.Context, input, prefix string) ([]string, error) {
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, input, prefix)

	if _, errb, err := e.runner.Run(ctx, e.cfg.PdftoppmPath, args...); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ocr.Recognize: %s not found on PATH (install poppler-utils): %w", e.cfg.PdftoppmPath, domain.ErrOCRUnavailable)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, e.contextError(ctxErr)
		}
		return nil, fmt.Errorf("ocr.Recognize: pdftoppm: %v: %s: %w", err, truncate(strings.TrimSpace(string(errb)), 512), domain.ErrOCRFailed)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sortByPageNumber(matches, prefix)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("ocr.Recognize: pdftoppm produced no images: %w", domain.ErrOCRFailed)
	}
	return matches, nil
}

func (e *Engine) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("ocr.Recognize: %w", domain.ErrOCRTimeout)
	}
	return fmt.Errorf("ocr.Recognize: %w", err)
}

// sortByPageNumber orders pdftoppm output (prefix-1.png, prefix-02.png, ...)
// numerically rather than lexically.
func sortByPageNumber(paths []string, prefix string) {
	num := func(p string) int {
		s := strings.TrimSuffix(strings.TrimPrefix(p, prefix+"-"), ".png")
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}

func stripPageHeaders(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "--- Page ") && strings.HasSuffix(line, " ---") {
			continue
		}
		b.WriteString(line)
	}
	return strings.TrimSpace(b.String())
}
