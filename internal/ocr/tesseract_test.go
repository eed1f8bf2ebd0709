package ocr_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/domain"
	"medorders/internal/ocr"
)

type recordingRunner struct {
	out  string
	err  error
	name string
	args []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return []byte(r.out), []byte("stderr output"), r.err
}

func TestTesseractRecognizer_Arguments(t *testing.T) {
	runner := &recordingRunner{out: "  Patient: John Doe \n"}
	rec := ocr.NewTesseractRecognizer(runner, "", "", "/opt/tessdata")

	text, err := rec.RecognizePage(context.Background(), "/tmp/page-1.png")

	require.NoError(t, err)
	assert.Equal(t, "Patient: John Doe", text)
	assert.Equal(t, "tesseract", runner.name)
	assert.Equal(t, []string{"/tmp/page-1.png", "stdout", "-l", "eng", "--tessdata-dir", "/opt/tessdata"}, runner.args)
}

func TestTesseractRecognizer_NotInstalled(t *testing.T) {
	runner := &recordingRunner{err: &exec.Error{Name: "tesseract", Err: exec.ErrNotFound}}
	rec := ocr.NewTesseractRecognizer(runner, "tesseract", "eng", "")

	_, err := rec.RecognizePage(context.Background(), "/tmp/page-1.png")

	assert.ErrorIs(t, err, domain.ErrOCRUnavailable)
}

func TestTesseractRecognizer_Failure(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}
	rec := ocr.NewTesseractRecognizer(runner, "tesseract", "eng", "")

	_, err := rec.RecognizePage(context.Background(), "/tmp/page-1.png")

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrOCRUnavailable)
	assert.Contains(t, err.Error(), "stderr output")
}
