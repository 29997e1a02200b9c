package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/grounding-corpus/internal/adapters/mcp"
	"github.com/kirillkom/grounding-corpus/internal/bootstrap"
	"github.com/kirillkom/grounding-corpus/internal/config"
	"github.com/kirillkom/grounding-corpus/internal/observability/logging"
)

// stdout carries the JSON-RPC stream, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{SkipQueue: true})
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server, err := mcpadapter.NewServer(app.Search, app.Corpus, logger)
	if err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("mcp serve error", "error", err)
	}
}
