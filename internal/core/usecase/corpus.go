package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CorpusService serves source status reads and operator maintenance.
type CorpusService struct {
	repo     ports.SourceRepository
	indexer  *Indexer
	settings *RetrievalSettings
}

func NewCorpusService(repo ports.SourceRepository, indexer *Indexer, settings *RetrievalSettings) *CorpusService {
	return &CorpusService{
		repo:     repo,
		indexer:  indexer,
		settings: settings,
	}
}

func (s *CorpusService) GetSourceStatus(ctx context.Context, sourceID string) (*domain.Source, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get source status", errors.New("source id is required"))
	}
	return s.repo.GetByID(ctx, sourceID)
}

func (s *CorpusService) ListSources(ctx context.Context, limit int) ([]domain.Source, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	return s.repo.List(ctx, limit)
}

// PurgeAllChunks clears the chunk corpus. Source records keep their state.
func (s *CorpusService) PurgeAllChunks(ctx context.Context) (int, error) {
	return s.indexer.PurgeAll(ctx)
}

func (s *CorpusService) RetrievalConfig(ctx context.Context) domain.RetrievalConfig {
	return s.settings.Current(ctx)
}

func (s *CorpusService) SetDistanceThreshold(ctx context.Context, value float64) (domain.RetrievalConfig, error) {
	return s.settings.SetDistanceThreshold(ctx, value)
}
