package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTemporary      = errors.New("temporary failure")
)

// Pipeline failure kinds. Every ingestion or retrieval failure carries exactly one of them.
var (
	ErrExtractionEmpty         = errors.New("extraction produced no text")
	ErrExtractionUnavailable   = errors.New("extraction service unavailable")
	ErrInvalidChunkConfig      = errors.New("invalid chunk configuration")
	ErrChunkingProducedNothing = errors.New("chunking produced nothing")
	ErrIndexingBatchFailed     = errors.New("indexing batch failed")
	ErrEmbeddingUnavailable    = errors.New("embedding service unavailable")
	ErrRetrievalQueryFailed    = errors.New("retrieval query failed")
	ErrStatusWriteFailed       = errors.New("status write failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrExtractionEmpty, "ExtractionEmpty"},
	{ErrExtractionUnavailable, "ExtractionUnavailable"},
	{ErrInvalidChunkConfig, "InvalidChunkConfig"},
	{ErrChunkingProducedNothing, "ChunkingProducedNothing"},
	{ErrIndexingBatchFailed, "IndexingBatchFailed"},
	{ErrEmbeddingUnavailable, "EmbeddingUnavailable"},
	{ErrRetrievalQueryFailed, "RetrievalQueryFailed"},
	{ErrStatusWriteFailed, "StatusWriteFailed"},
	{ErrSourceNotFound, "SourceNotFound"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrTemporary, "Temporary"},
}

// KindName returns the name of the first taxonomy kind found in err's chain.
// Pipeline kinds take precedence over ErrTemporary, which adapters add on top.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "Internal"
}
