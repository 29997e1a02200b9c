package ports

import (
	"context"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload detection and re-index requests.
type DocumentIngestor interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.Source, error)
	Reindex(ctx context.Context, sourceID string) (*domain.Source, error)
}

// DocumentProcessor runs the ingestion pipeline for one source.
// ProcessByID fails only when the source record cannot be loaded; pipeline
// failures are reported through the result.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, req domain.ProcessRequest) domain.ProcessResult
	ProcessByID(ctx context.Context, sourceID string) (domain.ProcessResult, error)
}

// SourceReader is the inbound read model for source lifecycle state.
type SourceReader interface {
	GetSourceStatus(ctx context.Context, sourceID string) (*domain.Source, error)
	ListSources(ctx context.Context, limit int) ([]domain.Source, error)
}

// CorpusSearcher is the retrieval contract consumed by the conversational agent.
type CorpusSearcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error)
	Diagnose(ctx context.Context, req domain.SearchRequest) (*domain.SearchDiagnostics, error)
}

// CorpusAdmin groups the operator-only corpus operations.
type CorpusAdmin interface {
	PurgeAllChunks(ctx context.Context) (int, error)
	RetrievalConfig(ctx context.Context) domain.RetrievalConfig
	SetDistanceThreshold(ctx context.Context, value float64) (domain.RetrievalConfig, error)
}
