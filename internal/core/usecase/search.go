package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const DefaultSearchResultLimit = 5

type retrievalConfigSource interface {
	Current(ctx context.Context) domain.RetrievalConfig
}

// SearchUseCase answers grounding queries against the whole chunk corpus.
// An empty result is a valid outcome and is distinct from a failed query.
type SearchUseCase struct {
	embedder     ports.Embedder
	store        ports.ChunkStore
	settings     retrievalConfigSource
	defaultLimit int
}

func NewSearchUseCase(
	embedder ports.Embedder,
	store ports.ChunkStore,
	settings retrievalConfigSource,
	defaultLimit int,
) *SearchUseCase {
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchResultLimit
	}
	return &SearchUseCase{
		embedder:     embedder,
		store:        store,
		settings:     settings,
		defaultLimit: defaultLimit,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	diag, err := uc.search(ctx, req)
	if err != nil {
		return nil, err
	}
	return diag.Results, nil
}

// Diagnose runs the same path as Search and also returns the raw candidates,
// the threshold that was applied and the query embedding.
func (uc *SearchUseCase) Diagnose(ctx context.Context, req domain.SearchRequest) (*domain.SearchDiagnostics, error) {
	return uc.search(ctx, req)
}

func (uc *SearchUseCase) search(ctx context.Context, req domain.SearchRequest) (*domain.SearchDiagnostics, error) {
	normalized := NormalizeQuery(req.Query)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search corpus", errors.New("query is empty"))
	}

	cfg := uc.settings.Current(ctx)
	threshold := cfg.DistanceThreshold
	if req.DistanceThreshold != nil {
		if err := domain.ValidateDistanceThreshold(*req.DistanceThreshold); err != nil {
			return nil, err
		}
		threshold = *req.DistanceThreshold
	}
	candidateLimit := cfg.CandidateLimit
	if candidateLimit <= 0 {
		candidateLimit = domain.DefaultCandidateLimit
	}
	limit := req.Limit
	if limit <= 0 {
		limit = uc.defaultLimit
	}

	vector, err := uc.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed query", err)
	}
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed query", errors.New("empty query vector"))
	}

	candidates, err := uc.store.FindNearest(ctx, vector, candidateLimit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalQueryFailed, "find nearest chunks", err)
	}

	return &domain.SearchDiagnostics{
		Query:           req.Query,
		NormalizedQuery: normalized,
		Threshold:       threshold,
		CandidateLimit:  candidateLimit,
		CandidateCount:  len(candidates),
		Candidates:      candidates,
		Results:         filterByDistance(candidates, threshold, limit),
		Embedding:       vector,
	}, nil
}

// NormalizeQuery lowercases the query and collapses runs of whitespace.
// Indexed chunk text is stored as extracted.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func filterByDistance(candidates []domain.SearchResult, threshold float64, limit int) []domain.SearchResult {
	kept := make([]domain.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Distance <= threshold {
			kept = append(kept, c)
		}
	}
	slices.SortStableFunc(kept, func(a, b domain.SearchResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
