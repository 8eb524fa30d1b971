package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"threatwatch/internal/classify"
	"threatwatch/internal/config"
	"threatwatch/internal/drift"
	"threatwatch/internal/feeds"
	"threatwatch/internal/infrastructure/artifacts"
	infrafeeds "threatwatch/internal/infrastructure/feeds"
	"threatwatch/internal/infrastructure/scheduler"
	"threatwatch/internal/infrastructure/state"
	"threatwatch/internal/infrastructure/storage"
	"threatwatch/internal/logging"
	"threatwatch/internal/ports"
	"threatwatch/internal/train"
	"threatwatch/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *usecase.Scheduler
	artifacts *artifacts.BoltStore
	db        *sql.DB
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}

	app := &Application{cfg: cfg, logger: baseLogger}

	store, err := app.buildStore()
	if err != nil {
		return nil, err
	}

	artifactStore, err := artifacts.Open(cfg.Artifacts.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	app.artifacts = artifactStore

	registry := feeds.NewRegistry()
	registry.Register(infrafeeds.NewRSSFetcher(nil))
	registry.Register(infrafeeds.NewAdvisoryFetcher(nil))

	source := infrafeeds.NewStrategySource(registry, cfg.Ingest, cfg.Sources,
		baseLogger.With("component", "source"))

	classifier := classify.NewService(store, baseLogger.With("component", "classifier"))
	app.restoreSnapshot(classifier)

	monitor := &drift.Monitor{
		MinSamples: cfg.Drift.MinSamples,
		Threshold:  cfg.Drift.Threshold,
	}

	stateOut := state.NewFileWriter(cfg.Artifacts.StatePath)

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Store:      store,
		Artifacts:  artifactStore,
		Trainer:    train.New(cfg.Training.MinCorpus, baseLogger.With("component", "trainer")),
		Classifier: classifier,
		StateOut:   stateOut,
		Staleness:  cfg.Training.Staleness,
		Logger:     baseLogger.With("component", "orchestrator"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:       source,
		Store:        store,
		Classifier:   classifier,
		Monitor:      monitor,
		Orchestrator: orchestrator,
		StateOut:     stateOut,
		Throttle:     cfg.Ingest.Throttle,
		Logger:       baseLogger.With("component", "pipeline"),
	})

	app.scheduler = usecase.NewScheduler(scheduler.New(cfg.Scheduler.Spec), pipeline)
	return app, nil
}

func (a *Application) buildStore() (ports.IncidentStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory store")
		return storage.NewMemoryStore(a.cfg.Retention), nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return storage.NewPostgresStore(db, a.cfg.Retention), nil
}

// restoreSnapshot reloads the last published model so a restart resumes
// scoring without retraining.
func (a *Application) restoreSnapshot(classifier *classify.Service) {
	ctx := context.Background()

	version, err := a.artifacts.LatestVersion(ctx)
	if err != nil || version == "" {
		return
	}

	snap, err := a.artifacts.LoadSnapshot(ctx, version)
	if err != nil {
		a.logger.Warn("cannot restore model snapshot", "version", version, "error", err)
		return
	}
	classifier.Activate(snap)
}

// Run starts the recurring pipeline and blocks until the context is
// cancelled; the in-flight cycle completes before shutdown.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("pipeline started", "spec", a.cfg.Scheduler.Spec, "sources", len(a.cfg.Sources))

	<-ctx.Done()

	grace := a.cfg.Scheduler.Shutdown
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler stop timed out", "error", err)
	}

	a.close()
	a.logger.Info("pipeline stopped")
	return nil
}

func (a *Application) close() {
	if a.artifacts != nil {
		if err := a.artifacts.Close(); err != nil {
			a.logger.Warn("cannot close artifact store", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("cannot close database", "error", err)
		}
	}
}
