package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"GradePipeline/internal/config"
	"GradePipeline/internal/consensus"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/infrastructure/export"
	"GradePipeline/internal/infrastructure/llm"
	"GradePipeline/internal/infrastructure/localfs"
	"GradePipeline/internal/infrastructure/progress"
	"GradePipeline/internal/infrastructure/scheduler"
	"GradePipeline/internal/infrastructure/telegram"
	"GradePipeline/internal/logging"
	"GradePipeline/internal/materialize"
	"GradePipeline/internal/metrics"
	"GradePipeline/internal/ports"
	"GradePipeline/internal/prompts"
	"GradePipeline/internal/runlock"
	"GradePipeline/internal/usecase"
	"GradePipeline/internal/workspace"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	layout    workspace.Layout
	pipeline  *usecase.Pipeline
	publisher *progress.Publisher
	registry  *prometheus.Registry
	db        *sql.DB
}

// New builds every adapter from configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		layout:   workspace.New(cfg.Workspace.Root),
		registry: prometheus.NewRegistry(),
	}

	catalogue, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	pm, err := metrics.New(a.registry)
	if err != nil {
		return nil, err
	}

	exporter, err := a.buildExporter(ctx)
	if err != nil {
		return nil, err
	}

	var vision materialize.PageRenderer
	if cfg.Grader.Vision.Enabled {
		vision = materialize.Poppler{Binary: cfg.Materializer.OCR.Renderer}
	}

	if cfg.Progress.Redis.Addr != "" {
		pub, err := progress.NewPublisher(ctx, cfg.Progress.Redis, baseLogger.With("component", "progress.redis"))
		if err != nil {
			baseLogger.Warn("redis progress disabled", "error", err)
		} else {
			a.publisher = pub
		}
	}

	var notifier ports.Notifier
	if n := telegram.NewNotifier(cfg.Notifications.Telegram); n != nil {
		notifier = n
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		LMS:          localfs.New(cfg.LMS.Root, a.layout, baseLogger.With("component", "lms")),
		Materializer: buildMaterializer(cfg.Materializer, baseLogger.With("component", "materializer")),
		Grader:       llm.NewOpenAIGrader(cfg.Grader, catalogue, vision, baseLogger.With("component", "grader")),
		Reviewer:     llm.NewGeminiReviewer(cfg.Reviewer, catalogue, baseLogger.With("component", "reviewer")),
		Exporter:     exporter,
		Notifier:     notifier,
		Resolver:     consensus.NewResolver(cfg.Pipeline.SubstitutionThreshold),
		Layout:       a.layout,
		Metrics:      pm,
		Logger:       baseLogger.With("component", "pipeline"),
		Options: usecase.Options{
			Concurrency:      cfg.Pipeline.Concurrency,
			SubmitterTimeout: cfg.Pipeline.SubmitterTimeout,
			FeedbackFooter:   cfg.Pipeline.FeedbackFooter,
			Filter:           cfg.Pipeline.Filter,
		},
	})
	return a, nil
}

func buildMaterializer(cfg config.MaterializerConfig, logger *slog.Logger) *materialize.Materializer {
	var converters []materialize.Converter
	if cfg.LibreOffice.Enabled {
		converters = append(converters, materialize.NewLibreOffice(execConfig(cfg.LibreOffice), logger))
	}
	if cfg.Pandoc.Enabled {
		converters = append(converters, materialize.NewPandoc(execConfig(cfg.Pandoc)))
	}

	deps := materialize.Deps{Converters: converters, Logger: logger}
	if cfg.OCR.Enabled {
		deps.Renderer = materialize.Poppler{Binary: cfg.OCR.Renderer}
		deps.Recognizer = materialize.Tesseract{Binary: cfg.OCR.Recognizer, PSM: cfg.OCR.PSM}
	}
	return materialize.New(deps)
}

func execConfig(c config.ConverterConfig) materialize.ExecConfig {
	return materialize.ExecConfig{Binary: c.Binary, Timeout: c.Timeout, Retries: c.Retries, RetryWait: c.RetryWait}
}

func (a *Application) buildExporter(ctx context.Context) (ports.Exporter, error) {
	switch a.cfg.Export.Driver {
	case "postgres", "mysql":
		dialect := export.Dialect(a.cfg.Export.Driver)
		db, err := export.OpenSQL(ctx, dialect, a.cfg.Export.DSN)
		if err != nil {
			return nil, err
		}
		exp := export.NewSQLExporter(db, dialect, a.cfg.Export.Table)
		if err := exp.EnsureTable(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		return exp, nil
	default:
		return export.NewCSVExporter(a.layout.GradesDir()), nil
	}
}

// Start launches background services (the metrics endpoint) until ctx ends.
func (a *Application) Start(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.registry, a.logger); err != nil {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// Run grades one assignment under its run lock. Progress goes to sink (or
// the logger when nil) and, if configured, to redis. The configured
// missing-as-zero policy applies on top of the request.
func (a *Application) Run(ctx context.Context, req usecase.BatchRequest, sink ports.ProgressSink) (domain.BatchResult, error) {
	if err := usecase.ValidateAssignmentID(req.AssignmentID); err != nil {
		return domain.BatchResult{AssignmentID: req.AssignmentID}, err
	}

	lock, err := runlock.Acquire(a.layout.LockPath(req.AssignmentID))
	if err != nil {
		return domain.BatchResult{AssignmentID: req.AssignmentID}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("release run lock", "assignment", req.AssignmentID, "error", err)
		}
	}()

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if a.cfg.Pipeline.GradeMissingAsZero {
		req.GradeMissingAsZero = true
	}
	if sink == nil {
		sink = progress.NewLogSink(a.logger.With("component", "batch", "run_id", req.RunID))
	}
	if a.publisher != nil {
		sink = progress.NewFanout(sink, a.publisher.Sink(req.RunID, req.AssignmentID))
	}

	return a.pipeline.RunBatch(ctx, req, sink)
}

// Commit posts a reviewed batch to the LMS.
func (a *Application) Commit(ctx context.Context, batch domain.BatchResult) error {
	lock, err := runlock.Acquire(a.layout.LockPath(batch.AssignmentID))
	if err != nil {
		return err
	}
	defer lock.Release()

	return a.pipeline.Commit(ctx, batch)
}

// Watch re-grades the configured assignments on the scheduler interval
// until ctx is cancelled.
func (a *Application) Watch(ctx context.Context) error {
	if len(a.cfg.Scheduler.Assignments) == 0 {
		return fmt.Errorf("%w: no scheduler assignments configured", domain.ErrConfiguration)
	}

	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval, a.cfg.Scheduler.Location())
	run := func(ctx context.Context, id string) error {
		_, err := a.Run(ctx, usecase.BatchRequest{AssignmentID: id}, nil)
		if errors.Is(err, runlock.ErrLocked) {
			a.logger.Info("assignment busy, skipping this tick", "assignment", id)
			return nil
		}
		return err
	}
	sched := usecase.NewScheduler(driver, run, a.cfg.Scheduler.Assignments, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases connections.
func (a *Application) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// LoadOverrides reads a YAML map of real submitter id to override.
func LoadOverrides(path string) (map[string]domain.Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides %s: %w", path, err)
	}
	overrides := map[string]domain.Override{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	return overrides, nil
}
