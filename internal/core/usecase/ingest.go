package usecase

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const sniffLen = 512

type IngestDocumentUseCase struct {
	repo    ports.SourceRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	tracker *StatusTracker
}

func NewIngestDocumentUseCase(
	repo ports.SourceRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	tracker *StatusTracker,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		tracker: tracker,
	}
}

// Upload stores the file, registers a pending source and announces it to the workers.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.Source, error) {
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload source", fmt.Errorf("file body is required"))
	}
	level, err := domain.ParseLevel(string(req.Level))
	if err != nil {
		return nil, err
	}

	body := bufio.NewReaderSize(req.Body, sniffLen)
	mimeType := detectMimeType(req.Filename, req.MimeType, body)

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	downloadURL, err := uc.storage.ResolveDownloadURL(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("resolve download url: %w", err)
	}

	source := &domain.Source{
		SourceID:    id,
		SourceName:  req.Filename,
		Level:       level,
		Topic:       strings.TrimSpace(req.Topic),
		DownloadURL: downloadURL,
		StoragePath: storageKey,
		MimeType:    mimeType,
	}
	if err := uc.tracker.Register(ctx, source); err != nil {
		return nil, fmt.Errorf("create source metadata: %w", err)
	}

	if err := uc.queue.PublishSourceUploaded(ctx, source.SourceID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return source, nil
}

// Reindex requeues an existing source. The worker replaces its chunks.
func (uc *IngestDocumentUseCase) Reindex(ctx context.Context, sourceID string) (*domain.Source, error) {
	source, err := uc.repo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	if err := uc.queue.PublishSourceUploaded(ctx, source.SourceID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return source, nil
}

// Office types are missing from the builtin mime table on minimal images.
var officeMimeTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// detectMimeType trusts an explicit type unless it is the generic octet-stream,
// then falls back to the extension and finally to content sniffing.
func detectMimeType(filename, declared string, body *bufio.Reader) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return declared
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if office, ok := officeMimeTypes[ext]; ok {
		return office
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	head, _ := body.Peek(sniffLen)
	if len(head) == 0 {
		return "text/plain; charset=utf-8"
	}
	return http.DetectContentType(head)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
