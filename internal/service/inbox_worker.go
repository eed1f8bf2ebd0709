package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"medorders/internal/config"
	"medorders/internal/domain"
)

// Inbox subdirectories. A PDF moves from the inbox root to processing/ when
// claimed and then to done/ or failed/ next to a JSON report.
const (
	inboxProcessing = "processing"
	inboxDone       = "done"
	inboxFailed     = "failed"
)

const (
	inboxDocTimeout = 5 * time.Minute
	// inboxSettle coalesces the create and write events of one copy.
	inboxSettle = 250 * time.Millisecond
)

// InboxReport is written next to every processed document.
type InboxReport struct {
	File     string                     `json:"file"`
	Result   *domain.OrderPersistResult `json:"result,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Class    domain.ErrorClass          `json:"class,omitempty"`
	State    domain.PipelineState       `json:"state,omitempty"`
	Trace    []domain.PipelineState     `json:"trace,omitempty"`
	Finished time.Time                  `json:"finished_at"`
}

// InboxWorker ingests PDFs dropped into a directory. Claiming is a rename,
// so several workers may share one inbox. Producers should write elsewhere
// and rename into the inbox so a half-written file is never claimed.
type InboxWorker struct {
	intake IntakeService
	cfg    config.InboxConfig
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewInboxWorker creates a new InboxWorker.
func NewInboxWorker(intake IntakeService, cfg config.InboxConfig, log zerolog.Logger) (*InboxWorker, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox: directory is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	for _, sub := range []string{inboxProcessing, inboxDone, inboxFailed} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("inbox: %w", err)
		}
	}
	return &InboxWorker{
		intake: intake,
		cfg:    cfg,
		log:    log.With().Str("component", "inbox").Str("dir", cfg.Dir).Logger(),
	}, nil
}

// Start runs the polling loop until ctx is canceled. New files wake the loop
// early, once a burst of filesystem events settles. It blocks until all
// in-flight documents have finished.
func (w *InboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var watchErrs chan error
	if watcher, err := fsnotify.NewWatcher(); err != nil {
		w.log.Warn().Err(err).Msg("file notifications unavailable, polling only")
	} else {
		defer watcher.Close()
		if err := watcher.Add(w.cfg.Dir); err != nil {
			w.log.Warn().Err(err).Msg("cannot watch inbox, polling only")
		} else {
			events, watchErrs = watcher.Events, watcher.Errors
		}
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	w.log.Info().
		Dur("poll", w.cfg.PollInterval).
		Int("concurrency", w.cfg.Concurrency).
		Msg("inbox worker started")

	var settle *time.Timer
	var settled <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	w.dispatch(ctx, sem)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("inbox worker shutting down, waiting for in-flight documents")
			w.wg.Wait()
			w.log.Info().Msg("inbox worker stopped")
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isPDF(ev.Name) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(inboxSettle)
			} else {
				settle.Reset(inboxSettle)
			}
			settled = settle.C
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			w.log.Warn().Err(err).Msg("inbox watch error")
		case <-settled:
			settled = nil
			w.dispatch(ctx, sem)
		case <-ticker.C:
			w.dispatch(ctx, sem)
		}
	}
}

// Drain processes every document currently in the inbox and waits for them.
// It returns the number of documents processed.
func (w *InboxWorker) Drain(ctx context.Context) int {
	sem := make(chan struct{}, w.cfg.Concurrency)
	total := 0
	for ctx.Err() == nil {
		sem <- struct{}{}
		claimed, err := w.claim(1)
		if err != nil {
			w.log.Error().Err(err).Msg("claim failed")
		}
		if len(claimed) == 0 {
			<-sem
			break
		}
		w.start(ctx, sem, claimed[0])
		total++
	}
	w.wg.Wait()
	return total
}

// dispatch claims as many files as there are free slots and starts them.
func (w *InboxWorker) dispatch(ctx context.Context, sem chan struct{}) {
	available := cap(sem) - len(sem)
	if available <= 0 {
		return
	}
	claimed, err := w.claim(available)
	if err != nil {
		w.log.Error().Err(err).Msg("claim failed")
	}
	for _, path := range claimed {
		sem <- struct{}{}
		w.start(ctx, sem, path)
	}
}

// start processes path in a goroutine that holds one slot of sem.
func (w *InboxWorker) start(ctx context.Context, sem chan struct{}, path string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-sem }()

		// In-flight documents finish even during shutdown.
		docCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inboxDocTimeout)
		defer cancel()
		w.process(docCtx, path)
	}()
}

// claim moves up to n PDFs from the inbox root into processing/, oldest
// name first. A file another worker renamed first is skipped.
func (w *InboxWorker) claim(n int) ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && isPDF(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	claimed := make([]string, 0, n)
	for _, name := range names {
		if len(claimed) == n {
			break
		}
		dst := filepath.Join(w.cfg.Dir, inboxProcessing, name)
		if err := os.Rename(filepath.Join(w.cfg.Dir, name), dst); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return claimed, err
		}
		claimed = append(claimed, dst)
	}
	return claimed, nil
}

func (w *InboxWorker) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	log := w.log.With().Str("file", name).Logger()
	report := InboxReport{File: name}

	data, err := os.ReadFile(path)
	if err == nil {
		report.Result, err = w.intake.Ingest(ctx, domain.RawDocument{
			Filename:  name,
			MediaType: "application/pdf",
			Bytes:     data,
		})
	}
	report.Finished = time.Now().UTC()

	dest := inboxDone
	if err != nil {
		dest = inboxFailed
		report.Error = err.Error()
		report.Class = domain.Classify(err)
		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			report.State, report.Trace = pe.State, pe.Trace
		}
		log.Warn().Err(err).Str("class", string(report.Class)).Msg("document failed")
	} else {
		log.Info().
			Int64("order_id", report.Result.Order.ID).
			Bool("has_duplicates", report.Result.HasDuplicates).
			Msg("document ingested")
	}

	target := filepath.Join(w.cfg.Dir, dest, name)
	if err := os.Rename(path, target); err != nil {
		log.Error().Err(err).Msg("move failed")
		return
	}
	if err := writeReport(target+".json", report); err != nil {
		log.Error().Err(err).Msg("report write failed")
	}
}

func writeReport(path string, report InboxReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
