package domain

import (
	"fmt"
	"math"
	"time"
)

// Chunk is one indexed text window of a source. Chunks are never patched:
// re-indexing deletes and rewrites every chunk of the source.
type Chunk struct {
	ID          string      `json:"id"`
	SourceID    string      `json:"source_id"`
	SourceName  string      `json:"source_name"`
	Level       SourceLevel `json:"level"`
	Topic       string      `json:"topic"`
	Text        string      `json:"text"`
	ChunkNumber int         `json:"chunk_number"`
	CreatedAt   time.Time   `json:"created_at"`
	DownloadURL string      `json:"download_url,omitempty"`
	Embedding   []float32   `json:"-"`
}

type IndexRequest struct {
	SourceID    string
	SourceName  string
	Level       SourceLevel
	Topic       string
	Chunks      []string
	DownloadURL string
}

type SearchResult struct {
	SourceID    string      `json:"source_id"`
	SourceName  string      `json:"source_name"`
	Level       SourceLevel `json:"level"`
	Topic       string      `json:"topic"`
	Text        string      `json:"text"`
	Distance    float64     `json:"distance"`
	ChunkNumber int         `json:"chunk_number,omitempty"`
	DownloadURL string      `json:"download_url,omitempty"`
}

type SearchRequest struct {
	Query string
	// DistanceThreshold overrides RetrievalConfig when set.
	DistanceThreshold *float64
	Limit             int
}

type SearchDiagnostics struct {
	Query           string         `json:"query"`
	NormalizedQuery string         `json:"normalized_query"`
	Threshold       float64        `json:"distance_threshold"`
	CandidateLimit  int            `json:"candidate_limit"`
	CandidateCount  int            `json:"candidate_count"`
	Candidates      []SearchResult `json:"candidates"`
	Results         []SearchResult `json:"results"`
	Embedding       []float32      `json:"embedding"`
}

const (
	DefaultDistanceThreshold = 0.7
	DefaultCandidateLimit    = 20
	MaxCosineDistance        = 2.0
)

// RetrievalConfig is the process-wide tunable read by the search engine on each query.
type RetrievalConfig struct {
	DistanceThreshold float64   `json:"distance_threshold"`
	CandidateLimit    int       `json:"candidate_limit"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		DistanceThreshold: DefaultDistanceThreshold,
		CandidateLimit:    DefaultCandidateLimit,
	}
}

func ValidateDistanceThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > MaxCosineDistance {
		return WrapError(ErrInvalidInput, "validate distance threshold", fmt.Errorf("%v is outside [0, %v]", v, MaxCosineDistance))
	}
	return nil
}
