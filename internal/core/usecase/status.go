package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const statusWriteTimeout = 10 * time.Second

// StatusTracker owns every write to a source's lifecycle columns.
// Progress and Fail never return errors: a failed status write is logged and
// the pipeline carries on.
type StatusTracker struct {
	repo   ports.SourceRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewStatusTracker(repo ports.SourceRepository, logger *slog.Logger) *StatusTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusTracker{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a pending record for the source unless one already exists.
func (t *StatusTracker) Register(ctx context.Context, source *domain.Source) error {
	_, err := t.repo.GetByID(ctx, source.SourceID)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrSourceNotFound) {
		return domain.WrapError(domain.ErrStatusWriteFailed, "register source", err)
	}

	now := t.now()
	record := *source
	record.Status = domain.StatusPending
	record.ProgressNote = ""
	record.ErrorMessage = ""
	record.ChunksWritten = nil
	record.IndexedAt = nil
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if err := t.repo.Create(ctx, &record); err != nil {
		return domain.WrapError(domain.ErrStatusWriteFailed, "register source", err)
	}
	*source = record
	return nil
}

func (t *StatusTracker) Progress(ctx context.Context, sourceID, note string) {
	t.write(ctx, sourceID, domain.StatusUpdate{
		Status:       domain.StatusProcessing,
		ProgressNote: note,
	})
}

// Succeed records the terminal success state in a single write. Unlike the
// other transitions its failure is returned, because the run cannot be
// reported as indexed without it.
func (t *StatusTracker) Succeed(ctx context.Context, sourceID string, chunksWritten int, indexedAt time.Time) error {
	count := chunksWritten
	at := indexedAt.UTC()
	return t.write(ctx, sourceID, domain.StatusUpdate{
		Status:        domain.StatusSuccess,
		ChunksWritten: &count,
		IndexedAt:     &at,
	})
}

func (t *StatusTracker) Fail(ctx context.Context, sourceID string, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	t.write(ctx, sourceID, domain.StatusUpdate{
		Status:       domain.StatusFailed,
		ErrorMessage: msg,
	})
}

func (t *StatusTracker) write(ctx context.Context, sourceID string, update domain.StatusUpdate) error {
	if !update.Valid() {
		err := domain.WrapError(domain.ErrStatusWriteFailed, "update status", errors.New("result fields do not match status"))
		t.logger.Error("status write rejected", "source_id", sourceID, "status", update.Status, "kind", domain.KindName(err))
		return err
	}
	// The run's own deadline may already be spent when the terminal state is written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := t.repo.UpdateStatus(writeCtx, sourceID, update); err != nil {
		wrapped := domain.WrapError(domain.ErrStatusWriteFailed, "update status", err)
		t.logger.Error("status write failed",
			"source_id", sourceID,
			"status", update.Status,
			"kind", domain.KindName(wrapped),
			"error", err,
		)
		return wrapped
	}
	return nil
}
