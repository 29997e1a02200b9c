package ports

import (
	"context"
	"io"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

// SourceRepository persists source records and their lifecycle state.
type SourceRepository interface {
	Create(ctx context.Context, source *domain.Source) error
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context, limit int) ([]domain.Source, error)
	UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error
}

// RetrievalConfigStore persists the retrieval tunables. Load reports false when nothing was saved yet.
type RetrievalConfigStore interface {
	Load(ctx context.Context) (domain.RetrievalConfig, bool, error)
	Save(ctx context.Context, cfg domain.RetrievalConfig) error
}

// ObjectStorage stores uploaded source bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Fetch(ctx context.Context, ref string) ([]byte, error)
	ResolveDownloadURL(ctx context.Context, key string) (string, error)
}

// MessageQueue publishes/consumes source-uploaded events.
type MessageQueue interface {
	PublishSourceUploaded(ctx context.Context, sourceID string) error
	SubscribeSourceUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor turns raw document bytes into clean text.
type TextExtractor interface {
	Extract(ctx context.Context, file domain.FileRef, mode domain.ExtractionMode) (string, error)
}

// DocumentGenerator is the generative-document service used for non-plain-text formats.
type DocumentGenerator interface {
	Generate(ctx context.Context, prompt string, file domain.FileRef) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits normalized text into ordered windows.
type Chunker interface {
	Split(text string) ([]string, error)
}

// ChunkStore is the chunk corpus with native nearest-neighbour queries.
// WriteBatch is atomic per call. FindNearest spans every source and returns
// candidates ordered by ascending cosine distance.
type ChunkStore interface {
	WriteBatch(ctx context.Context, chunks []domain.Chunk) error
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
	DeleteBatch(ctx context.Context, limit int) (int, error)
	CountBySource(ctx context.Context, sourceID string) (int, error)
	FindNearest(ctx context.Context, queryVector []float32, limit int) ([]domain.SearchResult, error)
}
