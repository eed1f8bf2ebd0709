package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/domain"
	"medorders/internal/ocr"
)

// fakeRunner emulates pdftoppm by writing the requested number of page
// images next to the output prefix.
type fakeRunner struct {
	mu        sync.Mutex
	pages     []int
	err       error
	stderr    string
	calls     [][]string
	inputPath string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte(f.stderr), f.err
	}
	prefix := args[len(args)-1]
	f.inputPath = args[len(args)-2]
	for _, n := range f.pages {
		img := imaging.New(4, 4, color.White)
		if err := imaging.Save(img, fmt.Sprintf("%s-%d.png", prefix, n)); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

// pageTextRecognizer returns text keyed by the page number in the file name.
type pageTextRecognizer struct {
	texts map[string]string
	errs  map[string]error
	seen  []string
}

func (p *pageTextRecognizer) RecognizePage(ctx context.Context, imagePath string) (string, error) {
	base := filepath.Base(imagePath)
	p.seen = append(p.seen, base)
	if err := p.errs[base]; err != nil {
		return "", err
	}
	return p.texts[base], nil
}

func newEngine(runner ocr.Runner, rec ocr.PageRecognizer, cfg ocr.Config) *ocr.Engine {
	return ocr.NewEngine(cfg, runner, rec, zerolog.Nop())
}

func pdfDoc() domain.RawDocument {
	return domain.RawDocument{Filename: "scan.pdf", Bytes: []byte("%PDF-1.4 scanned")}
}

func TestRecognize_ConcatenatesPagesInOrder(t *testing.T) {
	runner := &fakeRunner{pages: []int{10, 2, 1}}
	rec := &pageTextRecognizer{texts: map[string]string{
		"page-1.png":  "first",
		"page-2.png":  "second",
		"page-10.png": "tenth",
	}}

	res, err := newEngine(runner, rec, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, "\n--- Page 1 ---\nfirst\n\n--- Page 2 ---\nsecond\n\n--- Page 3 ---\ntenth", res.Text)
	assert.Equal(t, []string{"page-1.png", "page-2.png", "page-10.png"}, rec.seen)
}

func TestRecognize_PassesRasterizerArguments(t *testing.T) {
	runner := &fakeRunner{pages: []int{1}}
	rec := &pageTextRecognizer{texts: map[string]string{"page-1.png": "text"}}

	_, err := newEngine(runner, rec, ocr.Config{PdftoppmPath: "/usr/bin/pdftoppm", DPI: 200, MaxPages: 3}).
		Recognize(context.Background(), pdfDoc())

	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, []string{"/usr/bin/pdftoppm", "-r", "200", "-png", "-l", "3"}, call[:6])
	assert.True(t, strings.HasSuffix(call[6], "input.pdf"))
}

func TestRecognize_RemovesTempDir(t *testing.T) {
	runner := &fakeRunner{pages: []int{1}}
	rec := &pageTextRecognizer{texts: map[string]string{"page-1.png": "text"}}

	_, err := newEngine(runner, rec, ocr.Config{TempDir: t.TempDir()}).Recognize(context.Background(), pdfDoc())
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Dir(runner.inputPath))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRecognize_RemovesTempDirOnFailure(t *testing.T) {
	runner := &fakeRunner{pages: []int{1}}
	rec := &pageTextRecognizer{texts: map[string]string{"page-1.png": "   "}}

	_, err := newEngine(runner, rec, ocr.Config{TempDir: t.TempDir()}).Recognize(context.Background(), pdfDoc())
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Dir(runner.inputPath))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRecognize_ZeroPagesFails(t *testing.T) {
	runner := &fakeRunner{}

	_, err := newEngine(runner, &pageTextRecognizer{}, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRFailed)
}

func TestRecognize_EmptyTextFails(t *testing.T) {
	runner := &fakeRunner{pages: []int{1, 2}}
	rec := &pageTextRecognizer{texts: map[string]string{"page-1.png": "", "page-2.png": "\n"}}

	_, err := newEngine(runner, rec, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRFailed)
	assert.Equal(t, domain.ClassDocument, domain.Classify(err))
}

func TestRecognize_SkipsFailedPages(t *testing.T) {
	runner := &fakeRunner{pages: []int{1, 2}}
	rec := &pageTextRecognizer{
		texts: map[string]string{"page-2.png": "readable"},
		errs:  map[string]error{"page-1.png": errors.New("blurry")},
	}

	res, err := newEngine(runner, rec, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Equal(t, "\n--- Page 2 ---\nreadable", res.Text)
}

func TestRecognize_AllPagesFailing(t *testing.T) {
	runner := &fakeRunner{pages: []int{1}}
	rec := &pageTextRecognizer{errs: map[string]error{"page-1.png": errors.New("blurry")}}

	_, err := newEngine(runner, rec, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRFailed)
}

func TestRecognize_RasterizerMissing(t *testing.T) {
	runner := &fakeRunner{err: &exec.Error{Name: "pdftoppm", Err: exec.ErrNotFound}}

	_, err := newEngine(runner, &pageTextRecognizer{}, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRUnavailable)
	assert.Equal(t, domain.ClassEnvironment, domain.Classify(err))
}

func TestRecognize_RasterizerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), stderr: "Syntax Error: Couldn't read xref table"}

	_, err := newEngine(runner, &pageTextRecognizer{}, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRFailed)
	assert.Contains(t, err.Error(), "xref")
}

func TestRecognize_RecognizerUnavailableStopsEarly(t *testing.T) {
	runner := &fakeRunner{pages: []int{1, 2}}
	rec := &pageTextRecognizer{errs: map[string]error{
		"page-1.png": fmt.Errorf("tesseract missing: %w", domain.ErrOCRUnavailable),
	}}

	_, err := newEngine(runner, rec, ocr.Config{}).Recognize(context.Background(), pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRUnavailable)
	assert.Len(t, rec.seen, 1)
}

func TestRecognize_DeadlineIsTimeout(t *testing.T) {
	runner := &fakeRunner{pages: []int{1}}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := newEngine(runner, &pageTextRecognizer{}, ocr.Config{}).Recognize(ctx, pdfDoc())

	assert.ErrorIs(t, err, domain.ErrOCRTimeout)
}

func TestRecognize_EnhancesPagesWhenEnabled(t *testing.T) {
	runner := &fakeRunner{pages: []int{1}}
	rec := &pageTextRecognizer{texts: map[string]string{"page-1-enhanced.png": "enhanced text"}}

	res, err := newEngine(runner, rec, ocr.Config{Enhance: true}).Recognize(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Contains(t, res.Text, "enhanced text")
	assert.Equal(t, []string{"page-1-enhanced.png"}, rec.seen)
}

func TestPageHeader(t *testing.T) {
	assert.Equal(t, "\n--- Page 3 ---\n", ocr.PageHeader(3))
}
