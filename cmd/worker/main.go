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

	"github.com/kirillkom/grounding-corpus/internal/bootstrap"
	"github.com/kirillkom/grounding-corpus/internal/config"
	"github.com/kirillkom/grounding-corpus/internal/observability/logging"
	"github.com/kirillkom/grounding-corpus/internal/observability/metrics"
	"github.com/kirillkom/grounding-corpus/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()

	dispatcher, err := worker.NewDispatcher(app.Process, worker.Options{
		Concurrency:    cfg.WorkerConcurrency,
		ProcessTimeout: cfg.ProcessTimeout,
		Service:        "worker",
		Metrics:        workerMetrics,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("worker pool error", "error", err)
		os.Exit(1)
	}

	logger.Info("worker subscribed",
		"subject", cfg.NATSSubject,
		"queue_group", cfg.NATSQueueGroup,
		"concurrency", cfg.WorkerConcurrency,
	)
	if err := app.Queue.SubscribeSourceUploaded(ctx, dispatcher.Handle); err != nil {
		logger.Error("worker subscribe error", "error", err)
	}

	dispatcher.Close(cfg.ProcessTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker metrics shutdown error", "error", err)
	}
}
