package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const (
	stageValidation = "validation"
	stageExtraction = "extraction"
	stageChunking   = "chunking"
	stageIndexing   = "indexing"
	stageStatus     = "status update"
)

type ProcessDocumentUseCase struct {
	repo      ports.SourceRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	indexer   *Indexer
	tracker   *StatusTracker
	locks     *sourceLocks
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.SourceRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	indexer *Indexer,
	tracker *StatusTracker,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		indexer:   indexer,
		tracker:   tracker,
		locks:     newSourceLocks(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDocument runs extraction, chunking and indexing for one source and
// records every transition through the status tracker. Runs for the same
// source are serialized; failures are reported in the result, never returned.
func (uc *ProcessDocumentUseCase) ProcessDocument(ctx context.Context, req domain.ProcessRequest) (result domain.ProcessResult) {
	if strings.TrimSpace(req.SourceID) == "" {
		err := domain.WrapError(domain.ErrInvalidInput, "process document", errors.New("source id is required"))
		return failedResult(req.SourceID, stageValidation, err, 0)
	}

	unlock := uc.locks.acquire(req.SourceID)
	defer unlock()

	logger := uc.logger.With("source_id", req.SourceID)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error("ingestion panicked", "error", err)
			uc.tracker.Fail(ctx, req.SourceID, err)
			result = failedResult(req.SourceID, "pipeline", err, 0)
		}
	}()

	source := &domain.Source{
		SourceID:    req.SourceID,
		SourceName:  req.SourceName,
		Level:       req.Level,
		Topic:       req.Topic,
		DownloadURL: req.DownloadURL,
		StoragePath: req.StoragePath,
		MimeType:    req.MimeType,
	}
	if err := uc.tracker.Register(ctx, source); err != nil {
		logger.Error("source registration failed", "kind", domain.KindName(err), "error", err)
	}

	count, stage, err := uc.run(ctx, req)
	if err != nil {
		result = failedResult(req.SourceID, stage, err, 0)
		uc.tracker.Fail(ctx, req.SourceID, errors.New(result.Error))
		logger.Error("ingestion failed", "stage", stage, "kind", result.Kind, "error", err)
		return result
	}

	if err := uc.tracker.Succeed(ctx, req.SourceID, count, uc.now()); err != nil {
		result = failedResult(req.SourceID, stageStatus, err, count)
		// Best effort: leave the record failed rather than stuck in processing.
		uc.tracker.Fail(ctx, req.SourceID, errors.New(result.Error))
		logger.Error("ingestion failed", "stage", stageStatus, "kind", result.Kind, "error", err)
		return result
	}
	logger.Info("ingestion succeeded", "chunks_written", count)
	return domain.ProcessResult{
		SourceID:      req.SourceID,
		Success:       true,
		ChunksWritten: count,
	}
}

// ProcessByID loads the source record and runs the pipeline for it.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, sourceID string) (domain.ProcessResult, error) {
	source, err := uc.repo.GetByID(ctx, sourceID)
	if err != nil {
		return failedResult(sourceID, stageValidation, err, 0), fmt.Errorf("load source: %w", err)
	}
	return uc.ProcessDocument(ctx, domain.ProcessRequest{
		SourceID:    source.SourceID,
		SourceName:  source.SourceName,
		Level:       source.Level,
		Topic:       source.Topic,
		DownloadURL: source.DownloadURL,
		StoragePath: source.StoragePath,
		MimeType:    source.MimeType,
	}), nil
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, req domain.ProcessRequest) (int, string, error) {
	uc.tracker.Progress(ctx, req.SourceID, "Extracting text...")
	text, err := uc.extractText(ctx, req)
	if err != nil {
		return 0, stageExtraction, err
	}

	uc.tracker.Progress(ctx, req.SourceID, "Chunking text...")
	chunks, err := uc.chunk(text)
	if err != nil {
		return 0, stageChunking, err
	}

	uc.tracker.Progress(ctx, req.SourceID, fmt.Sprintf("Indexing %d chunks...", len(chunks)))
	count, err := uc.indexer.Index(ctx, domain.IndexRequest{
		SourceID:    req.SourceID,
		SourceName:  req.SourceName,
		Level:       req.Level,
		Topic:       req.Topic,
		Chunks:      chunks,
		DownloadURL: req.DownloadURL,
	})
	if err != nil {
		return 0, stageIndexing, err
	}
	return count, "", nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, req domain.ProcessRequest) (string, error) {
	// The storage key survives a change of public base URL; the download URL does not.
	ref := req.StoragePath
	if ref == "" {
		ref = req.DownloadURL
	}
	data, err := uc.storage.Fetch(ctx, ref)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionUnavailable, "fetch source bytes", err)
	}
	file := domain.FileRef{
		Name:     req.SourceName,
		MimeType: req.MimeType,
		Data:     data,
	}
	text, err := uc.extractor.Extract(ctx, file, domain.ExtractionModeFor(req.MimeType, req.SourceName))
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	chunks, err := uc.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrChunkingProducedNothing, "chunk text", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func failedResult(sourceID, stage string, err error, chunksWritten int) domain.ProcessResult {
	return domain.ProcessResult{
		SourceID:      sourceID,
		Success:       false,
		Error:         fmt.Sprintf("%s failed: %v", stage, err),
		Kind:          domain.KindName(err),
		ChunksWritten: chunksWritten,
	}
}
