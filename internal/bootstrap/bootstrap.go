package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/pdf-summarizer/internal/config"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
	"github.com/kirillkom/pdf-summarizer/internal/core/usecase"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/chunking"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/llm"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/lock/redislock"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/notify/sendgrid"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/queue/memory"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/storage/s3"
	"github.com/kirillkom/pdf-summarizer/internal/observability/metrics"
	"github.com/kirillkom/pdf-summarizer/internal/worker"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue         ports.JobQueue
	Repo          ports.DocumentRepository
	Reader        ports.DocumentReader
	Library       ports.DocumentLibrary
	IngestUC      ports.DocumentIngestor
	ProcessUC     ports.DocumentProcessor
	Runner        *worker.Runner
	WorkerMetrics *metrics.WorkerMetrics

	closers []func() error
}

// New wires every adapter selected by cfg. On error, whatever was already
// opened is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, db.Close)
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo
	app.Reader = repo

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app.WorkerMetrics = workerMetrics
	executor := resilience.NewExecutor(resilience.DefaultConfig()).WithRetryObserver(workerMetrics.ObserveRetry)

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := app.newQueue(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}
	app.Queue = queue

	completer, err := app.newLLM(ctx, cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	completer = llm.NewRateLimited(completer, cfg.LLMRateLimitRPS, cfg.LLMRateLimitBurst)

	locker, err := app.newLocker(cfg)
	if err != nil {
		return nil, fmt.Errorf("init document lock: %w", err)
	}

	notifier := sendgrid.New(sendgrid.Options{
		APIKey:             cfg.SendGridAPIKey,
		FromEmail:          cfg.FromEmail,
		FromName:           cfg.FromName,
		ResilienceExecutor: executor,
	})
	if !notifier.Enabled() {
		logger.Warn("email_notifications_disabled", "reason", "SENDGRID_API_KEY not set")
	}

	summarizer := usecase.NewSummarizer(completer, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), usecase.SummarizerOptions{
		MapConcurrency: cfg.SummaryMapConcurrency,
		Observer:       workerMetrics,
	})

	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue, cfg.MaxFileSize)
	app.Library = usecase.NewLibraryUseCase(repo, repo, storage, notifier, usecase.LibraryOptions{
		DashboardURL: cfg.FrontendURL,
		Logger:       logger,
	})
	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		repo,
		pdftext.NewExtractor(storage),
		summarizer,
		notifier,
		locker,
		usecase.ProcessOptions{
			MaxRetries:     cfg.MaxRetries,
			RetryBaseDelay: cfg.RetryBaseDelay,
			LockTTL:        cfg.LockTTL,
			LockBusyDelay:  cfg.LockBusyDelay,
			DashboardURL:   cfg.FrontendURL,
			Logger:         logger,
		},
	)
	app.Runner = worker.NewRunner(app.ProcessUC, queue, worker.Options{
		JobTimeout: cfg.JobTimeout,
		Metrics:    workerMetrics,
		Logger:     logger,
	})

	return app, nil
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	if cfg.StorageBackend == "s3" {
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
	}
	return localfs.New(cfg.StoragePath)
}

func (a *App) newQueue(cfg config.Config, executor *resilience.Executor) (ports.JobQueue, error) {
	if cfg.QueueBackend == "memory" {
		return memory.New(0, cfg.WorkerConcurrency), nil
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Stream:             cfg.NATSStream,
		Durable:            cfg.NATSDurable,
		Concurrency:        cfg.WorkerConcurrency,
		AckWait:            cfg.NATSAckWait,
		ResilienceExecutor: executor,
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		queue.Close()
		return nil
	})
	return queue, nil
}

func (a *App) newLLM(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.LLMClient, error) {
	if cfg.LLMProvider == "gemini" {
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, float32(cfg.LLMTemperature), executor)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	}
	return ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
		Temperature:        cfg.LLMTemperature,
		Timeout:            cfg.OllamaTimeout,
		ResilienceExecutor: executor,
	}), nil
}

// newLocker returns nil without REDIS_ADDR; duplicate deliveries are then
// caught only by the completed-status check.
func (a *App) newLocker(cfg config.Config) (ports.DocumentLocker, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	locker, err := redislock.New(redislock.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, locker.Close)
	return locker, nil
}

func (a *App) Close() {
	var errs []error
	for idx := len(a.closers) - 1; idx >= 0; idx-- {
		if err := a.closers[idx](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil && a.Logger != nil {
		a.Logger.Warn("shutdown_close_error", "error", err.Error())
	}
}
