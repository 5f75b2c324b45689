package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/pdf-summarizer/internal/adapters/http"
	"github.com/kirillkom/pdf-summarizer/internal/bootstrap"
	"github.com/kirillkom/pdf-summarizer/internal/config"
	"github.com/kirillkom/pdf-summarizer/internal/observability/logging"
	"github.com/kirillkom/pdf-summarizer/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err.Error())
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, logging.Options{Service: "api", Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_error", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	// The in-memory queue only reaches consumers in this process.
	workerDone := make(chan struct{})
	if cfg.QueueBackend == "memory" {
		go func() {
			defer close(workerDone)
			if err := app.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("embedded_worker_error", "error", err.Error())
			}
		}()
	} else {
		close(workerDone)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(cfg, app.IngestUC, app.Reader, app.Library,
		httpadapter.WithMetrics(httpMetrics.Handler(), httpMetrics),
		httpadapter.WithLogger(logger),
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           httpMetrics.Middleware("api", router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", "error", err.Error())
	}
	<-workerDone
}
