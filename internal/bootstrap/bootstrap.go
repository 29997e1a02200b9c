package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/grounding-corpus/internal/config"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
	"github.com/kirillkom/grounding-corpus/internal/core/usecase"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/chunking"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/extractor"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/queue/nats"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/resilience"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/vector/qdrant"
)

// Options trims the wiring for processes that never touch the queue.
type Options struct {
	SkipQueue bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   *nats.Queue
	Storage *localfs.Storage

	// Ingest is nil when the app was built without a queue.
	Ingest   *usecase.IngestDocumentUseCase
	Process  *usecase.ProcessDocumentUseCase
	Search   *usecase.SearchUseCase
	Corpus   *usecase.CorpusService
	Settings *usecase.RetrievalSettings

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	sourceRepo := postgres.NewSourceRepository(db)
	if err := sourceRepo.EnsureSchema(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("ensure sources schema: %w", err)
	}
	settingsRepo := postgres.NewSettingsRepository(db)
	if err := settingsRepo.EnsureSchema(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("ensure settings schema: %w", err)
	}

	policy := resilience.DefaultConfig().Overlay(resilience.Config{
		RetryMaxAttempts:   cfg.RetryMaxAttempts,
		RetryMaxBackoff:    cfg.RetryMaxBackoff,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	})
	executor := resilience.NewExecutor(policy).WithLogger(logger)

	chunkStore, err := newChunkStore(ctx, cfg, db, executor)
	if err != nil {
		closeAll()
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.StoragePublicBaseURL)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var queue *nats.Queue
	if !opts.SkipQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaExtractModel, cfg.OllamaEmbedModel, ollama.Options{
		GenerateTimeout: cfg.ExtractionTimeout,
		EmbedTimeout:    cfg.EmbedTimeout,
		Executor:        executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	textExtractor := extractor.New(ollama.NewDocumentGenerator(ollamaClient))
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	tracker := usecase.NewStatusTracker(sourceRepo, logger)
	indexer := usecase.NewIndexer(chunkStore, embedder, usecase.IndexerOptions{
		BatchSize:      cfg.IndexBatchSize,
		EmbedBatchSize: cfg.EmbedBatchSize,
		PurgePageSize:  cfg.PurgePageSize,
		Logger:         logger,
	})
	settings := usecase.NewRetrievalSettings(settingsRepo, cfg.SettingsCacheTTL, logger)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Queue:    queue,
		Storage:  storage,
		Process:  usecase.NewProcessDocumentUseCase(sourceRepo, storage, textExtractor, chunker, indexer, tracker, logger),
		Search:   usecase.NewSearchUseCase(embedder, chunkStore, settings, cfg.SearchResultLimit),
		Corpus:   usecase.NewCorpusService(sourceRepo, indexer, settings),
		Settings: settings,
		closeFn:  closeAll,
	}
	if queue != nil {
		app.Ingest = usecase.NewIngestDocumentUseCase(sourceRepo, storage, queue, tracker)
	}
	return app, nil
}

func newChunkStore(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.ChunkStore, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
			Timeout:  cfg.EmbedTimeout,
			Executor: executor,
		}), nil
	case "", "pgvector":
		repo := postgres.NewChunkRepository(db, cfg.EmbeddingDimensions)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure chunks schema: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
