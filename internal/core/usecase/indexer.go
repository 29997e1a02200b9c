package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const (
	MaxIndexBatchSize     = 400
	DefaultEmbedBatchSize = 64
	DefaultPurgePageSize  = 400
	defaultIndexBatchSize = MaxIndexBatchSize
)

type IndexerOptions struct {
	BatchSize      int
	EmbedBatchSize int
	PurgePageSize  int
	Logger         *slog.Logger
}

// Indexer replaces the chunk set of a source and clears the corpus on demand.
type Indexer struct {
	store          ports.ChunkStore
	embedder       ports.Embedder
	batchSize      int
	embedBatchSize int
	purgePageSize  int
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
}

func NewIndexer(store ports.ChunkStore, embedder ports.Embedder, options IndexerOptions) *Indexer {
	batchSize := options.BatchSize
	if batchSize <= 0 || batchSize > MaxIndexBatchSize {
		batchSize = defaultIndexBatchSize
	}
	embedBatchSize := options.EmbedBatchSize
	if embedBatchSize <= 0 {
		embedBatchSize = DefaultEmbedBatchSize
	}
	purgePageSize := options.PurgePageSize
	if purgePageSize <= 0 {
		purgePageSize = DefaultPurgePageSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:          store,
		embedder:       embedder,
		batchSize:      batchSize,
		embedBatchSize: embedBatchSize,
		purgePageSize:  purgePageSize,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// Index embeds every chunk, deletes the source's previous chunks and writes the
// new set in sequential batches. Embedding runs first so that an embedding
// failure leaves the previous index in place.
func (ix *Indexer) Index(ctx context.Context, req domain.IndexRequest) (int, error) {
	if len(req.Chunks) == 0 {
		return 0, domain.WrapError(domain.ErrChunkingProducedNothing, "index chunks", errors.New("no chunks to index"))
	}

	vectors, err := ix.embedAll(ctx, req.Chunks)
	if err != nil {
		return 0, err
	}

	removed, err := ix.store.DeleteBySource(ctx, req.SourceID)
	if err != nil {
		return 0, domain.WrapError(domain.ErrIndexingBatchFailed, "delete previous chunks", err)
	}
	if removed > 0 {
		ix.logger.Info("previous chunks removed", "source_id", req.SourceID, "count", removed)
	}

	createdAt := ix.now()
	records := make([]domain.Chunk, len(req.Chunks))
	for i, text := range req.Chunks {
		records[i] = domain.Chunk{
			ID:          ix.newID(),
			SourceID:    req.SourceID,
			SourceName:  req.SourceName,
			Level:       req.Level,
			Topic:       req.Topic,
			Text:        text,
			ChunkNumber: i + 1,
			CreatedAt:   createdAt,
			DownloadURL: req.DownloadURL,
			Embedding:   vectors[i],
		}
	}

	written := 0
	for start, batch := 0, 1; start < len(records); start, batch = start+ix.batchSize, batch+1 {
		end := min(start+ix.batchSize, len(records))
		if err := ix.store.WriteBatch(ctx, records[start:end]); err != nil {
			return written, domain.WrapError(
				domain.ErrIndexingBatchFailed,
				"write chunks",
				fmt.Errorf("batch %d failed after %d chunks committed: %w", batch, written, err),
			)
		}
		written += end - start
		ix.logger.Debug("chunk batch written", "source_id", req.SourceID, "batch", batch, "written", written)
	}
	return written, nil
}

func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ix.embedBatchSize {
		end := min(start+ix.embedBatchSize, len(texts))
		batch, err := ix.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed chunks", err)
		}
		if len(batch) != end-start {
			return nil, domain.WrapError(
				domain.ErrEmbeddingUnavailable,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), end-start),
			)
		}
		for i, vec := range batch {
			if len(vec) == 0 {
				return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed chunks", fmt.Errorf("empty vector for chunk %d", start+i+1))
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// PurgeAll deletes every chunk of every source in pages and returns the total
// removed. Source records are not touched. Safe to call again after a failure.
func (ix *Indexer) PurgeAll(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, domain.WrapError(domain.ErrIndexingBatchFailed, "purge chunks", err)
		}
		removed, err := ix.store.DeleteBatch(ctx, ix.purgePageSize)
		if err != nil {
			return total, domain.WrapError(domain.ErrIndexingBatchFailed, "purge chunks", err)
		}
		total += removed
		ix.logger.Info("chunk purge progress", "deleted", total)
		if removed < ix.purgePageSize {
			return total, nil
		}
	}
}
