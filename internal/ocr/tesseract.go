package ocr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"medorders/internal/domain"
)

// TesseractRecognizer recognizes page images with the tesseract CLI.
type TesseractRecognizer struct {
	runner      Runner
	path        string
	language    string
	tessdataDir string
}

// NewTesseractRecognizer creates a recognizer. Empty path and language
// default to "tesseract" and "eng".
func NewTesseractRecognizer(runner Runner, path, language, tessdataDir string) *TesseractRecognizer {
	if path == "" {
		path = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractRecognizer{runner: runner, path: path, language: language, tessdataDir: tessdataDir}
}

// RecognizePage runs `tesseract <img> stdout -l <lang>`.
func (t *TesseractRecognizer) RecognizePage(ctx context.Context, imagePath string) (string, error) {
	args := []string{imagePath, "stdout", "-l", t.language}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.path, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("tesseract.RecognizePage: %s not found on PATH (install tesseract-ocr): %w", t.path, domain.ErrOCRUnavailable)
		}
		return "", fmt.Errorf("tesseract.RecognizePage: %v: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
