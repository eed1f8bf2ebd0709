package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medorders/internal/config"
	"medorders/internal/domain"
	"medorders/internal/service"
	"medorders/mocks"
)

func newInbox(t *testing.T, intake service.IntakeService) (*service.InboxWorker, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := service.NewInboxWorker(intake, config.InboxConfig{
		Dir:          dir,
		PollInterval: 10 * time.Millisecond,
		Concurrency:  2,
	}, zerolog.Nop())
	require.NoError(t, err)
	return w, dir
}

func dropFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4 "+name), 0o644))
}

func readReport(t *testing.T, path string) service.InboxReport {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r service.InboxReport
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestNewInboxWorker_RequiresDir(t *testing.T) {
	_, err := service.NewInboxWorker(new(mocks.MockIntakeService), config.InboxConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewInboxWorker_CreatesLayout(t *testing.T) {
	_, dir := newInbox(t, new(mocks.MockIntakeService))
	for _, sub := range []string{"processing", "done", "failed"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestInboxWorker_Drain_Success(t *testing.T) {
	intake := new(mocks.MockIntakeService)
	w, dir := newInbox(t, intake)
	dropFile(t, dir, "order.pdf")

	intake.On("Ingest", mock.Anything, mock.MatchedBy(func(doc domain.RawDocument) bool {
		return doc.Filename == "order.pdf" && doc.MediaType == "application/pdf" && len(doc.Bytes) > 0
	})).Return(&domain.OrderPersistResult{Order: &domain.Order{ID: 7}}, nil).Once()

	n := w.Drain(context.Background())
	assert.Equal(t, 1, n)

	assert.FileExists(t, filepath.Join(dir, "done", "order.pdf"))
	assert.NoFileExists(t, filepath.Join(dir, "order.pdf"))
	assert.NoFileExists(t, filepath.Join(dir, "processing", "order.pdf"))

	r := readReport(t, filepath.Join(dir, "done", "order.pdf.json"))
	assert.Equal(t, "order.pdf", r.File)
	require.NotNil(t, r.Result)
	assert.Equal(t, int64(7), r.Result.Order.ID)
	assert.Empty(t, r.Error)
	intake.AssertExpectations(t)
}

func TestInboxWorker_Drain_Failure(t *testing.T) {
	intake := new(mocks.MockIntakeService)
	w, dir := newInbox(t, intake)
	dropFile(t, dir, "scan.PDF")

	failure := &domain.PipelineError{
		State: domain.StateExtractionFailed,
		Trace: []domain.PipelineState{domain.StateReceived, domain.StateOCRRequired, domain.StateExtractionFailed},
		Err:   domain.ErrOCRFailed,
	}
	intake.On("Ingest", mock.Anything, mock.Anything).Return(nil, failure).Once()

	assert.Equal(t, 1, w.Drain(context.Background()))

	assert.FileExists(t, filepath.Join(dir, "failed", "scan.PDF"))
	r := readReport(t, filepath.Join(dir, "failed", "scan.PDF.json"))
	assert.Nil(t, r.Result)
	assert.NotEmpty(t, r.Error)
	assert.Equal(t, domain.ClassDocument, r.Class)
	assert.Equal(t, domain.StateExtractionFailed, r.State)
	assert.Len(t, r.Trace, 3)
}

func TestInboxWorker_Drain_IgnoresOtherFiles(t *testing.T) {
	intake := new(mocks.MockIntakeService)
	w, dir := newInbox(t, intake)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	assert.Equal(t, 0, w.Drain(context.Background()))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	intake.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestInboxWorker_Drain_MoreFilesThanSlots(t *testing.T) {
	intake := new(mocks.MockIntakeService)
	w, dir := newInbox(t, intake)
	for i := 0; i < 5; i++ {
		dropFile(t, dir, fmt.Sprintf("order-%d.pdf", i))
	}
	intake.On("Ingest", mock.Anything, mock.Anything).
		Return(&domain.OrderPersistResult{Order: &domain.Order{ID: 1}}, nil).Times(5)

	assert.Equal(t, 5, w.Drain(context.Background()))

	done, err := filepath.Glob(filepath.Join(dir, "done", "*.pdf"))
	require.NoError(t, err)
	assert.Len(t, done, 5)
	intake.AssertExpectations(t)
}

func TestInboxWorker_Start_PicksUpNewFiles(t *testing.T) {
	intake := new(mocks.MockIntakeService)
	w, dir := newInbox(t, intake)
	intake.On("Ingest", mock.Anything, mock.Anything).
		Return(&domain.OrderPersistResult{Order: &domain.Order{ID: 3}}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	tmp := filepath.Join(t.TempDir(), "late.pdf")
	require.NoError(t, os.WriteFile(tmp, []byte("%PDF-1.4 late"), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "late.pdf")))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "done", "late.pdf.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	intake.AssertExpectations(t)
}
