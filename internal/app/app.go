// Package app assembles the intake pipeline and order services from
// configuration. Binaries call New and use the returned App.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"medorders/internal/config"
	"medorders/internal/handler"
	"medorders/internal/lock"
	"medorders/internal/ocr"
	"medorders/internal/parser"
	"medorders/internal/port"
	"medorders/internal/repository/memory"
	"medorders/internal/repository/postgres"
	"medorders/internal/service"
	"medorders/internal/textextract"

	// Model providers register themselves with the parser factory.
	_ "medorders/internal/parser/ollama"
	_ "medorders/internal/parser/openai"
)

// App holds the wired services.
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	Store  port.EntityStore
	Intake service.IntakeService
	Orders service.OrderService

	closers []func() error
}

// New wires every component selected by cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Store, err = a.newStore(); err != nil {
		return nil, err
	}
	locker, err := a.newLocker(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := parser.NewGenerator(&cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("app: model provider: %w", err)
	}
	extractor, err := parser.NewEngine(gen, cfg.Model, log)
	if err != nil {
		return nil, fmt.Errorf("app: extraction engine: %w", err)
	}

	resolver := service.NewResolver(locker, log)
	detector := service.NewDuplicateDetector(cfg.Duplicate, log)
	persister := service.NewPersister(a.Store, resolver, detector, log)

	a.Intake = service.NewPipeline(
		textextract.New(cfg.Extraction.MinTextChars, log),
		a.newOCREngine(),
		extractor,
		persister,
		service.PipelineConfig{OCRTimeout: cfg.OCR.Timeout(), ModelTimeout: cfg.Model.Timeout()},
		log,
	)
	a.Orders = service.NewOrderService(a.Store, persister, log)

	log.Info().
		Str("store", cfg.Server.StoreBackend).
		Str("lock", cfg.Lock.Backend).
		Str("ocr", cfg.OCR.Engine).
		Str("model_provider", cfg.Model.Provider).
		Str("model", cfg.Model.Name).
		Msg("application wired")
	return a, nil
}

func (a *App) newStore() (port.EntityStore, error) {
	if a.Config.Server.StoreBackend == "memory" {
		a.Log.Warn().Msg("using in-memory entity store; data is lost on exit")
		return memory.NewStore(), nil
	}
	db, err := postgres.NewDB(&a.Config.DB)
	if err != nil {
		return nil, fmt.Errorf("app: connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	return postgres.NewStore(db), nil
}

func (a *App) newLocker(ctx context.Context) (port.KeyLocker, error) {
	if a.Config.Lock.Backend != "redis" {
		return lock.NewLocalLocker(), nil
	}
	rdb, err := lock.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("app: connect to redis: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	return lock.NewRedisLocker(rdb, a.Config.Lock, a.Log), nil
}

// newOCREngine returns the configured OCR engine. Tools are looked up
// lazily, so a missing tesseract surfaces as ErrOCRUnavailable per document.
func (a *App) newOCREngine() port.OCREngine {
	cfg := a.Config.OCR
	runner := ocr.NewExecRunner(a.Log)

	var recognizer ocr.PageRecognizer
	switch cfg.Engine {
	case "azure":
		recognizer = ocr.NewAzureRecognizer(cfg.AzureEndpoint, cfg.AzureKey)
	default:
		recognizer = ocr.NewTesseractRecognizer(runner, cfg.TesseractPath, cfg.Language, cfg.TessdataDir)
	}
	return ocr.NewEngine(ocr.Config{
		PdftoppmPath: cfg.PdftoppmPath,
		DPI:          cfg.DPI,
		MaxPages:     cfg.MaxPages,
		Enhance:      cfg.Enhance,
	}, runner, recognizer, a.Log)
}

// HealthHandler returns readiness checks over the entity store.
func (a *App) HealthHandler() *handler.HealthHandler {
	return handler.NewHealthHandler(a.Store)
}

// OrderHandler returns the HTTP handler for intake and order endpoints.
func (a *App) OrderHandler() *handler.OrderHandler {
	return handler.NewOrderHandler(a.Intake, a.Orders, a.Config.Server.MaxUploadBytes())
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
