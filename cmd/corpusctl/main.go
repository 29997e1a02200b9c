package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/grounding-corpus/internal/adapters/cli"
	"github.com/kirillkom/grounding-corpus/internal/bootstrap"
	"github.com/kirillkom/grounding-corpus/internal/config"
	"github.com/kirillkom/grounding-corpus/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context, withQueue bool) (*cli.Services, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		logger := logging.New(os.Stderr, "corpusctl", cfg.LogLevel, "text")

		app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{SkipQueue: !withQueue})
		if err != nil {
			return nil, nil, err
		}
		svc := &cli.Services{
			Processor: app.Process,
			Sources:   app.Corpus,
			Searcher:  app.Search,
			Admin:     app.Corpus,
		}
		if app.Ingest != nil {
			svc.Ingestor = app.Ingest
		}
		return svc, app.Close, nil
	})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
