package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const DefaultSettingsTTL = 30 * time.Second

// RetrievalSettings is a read-through cache over the persisted retrieval config.
// Updates made through this instance invalidate the cache immediately; updates
// made elsewhere become visible after the TTL.
type RetrievalSettings struct {
	store  ports.RetrievalConfigStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	refill singleflight.Group

	mu         sync.Mutex
	cached     domain.RetrievalConfig
	loadedAt   time.Time
	valid      bool
	generation uint64
}

const refillKey = "retrieval"

func NewRetrievalSettings(store ports.RetrievalConfigStore, ttl time.Duration, logger *slog.Logger) *RetrievalSettings {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalSettings{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Current returns the active config. An unreadable store yields the defaults,
// which are not cached so the next call retries the store. The mutex is never
// held across the store round trip; concurrent misses share one load.
func (s *RetrievalSettings) Current(ctx context.Context) domain.RetrievalConfig {
	s.mu.Lock()
	if s.valid && s.now().Sub(s.loadedAt) < s.ttl {
		cfg := s.cached
		s.mu.Unlock()
		return cfg
	}
	generation := s.generation
	s.mu.Unlock()

	v, _, _ := s.refill.Do(refillKey, func() (any, error) {
		return s.load(ctx, generation), nil
	})
	return v.(domain.RetrievalConfig)
}

func (s *RetrievalSettings) load(ctx context.Context, generation uint64) domain.RetrievalConfig {
	cfg, found, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("retrieval settings unavailable, using defaults", "error", err)
		return domain.DefaultRetrievalConfig()
	}
	if !found {
		cfg = domain.DefaultRetrievalConfig()
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = domain.DefaultCandidateLimit
	}
	if domain.ValidateDistanceThreshold(cfg.DistanceThreshold) != nil {
		s.logger.Warn("stored distance threshold out of range, using default", "value", cfg.DistanceThreshold)
		cfg.DistanceThreshold = domain.DefaultDistanceThreshold
	}

	s.mu.Lock()
	// An invalidation during the load means cfg may predate the latest write.
	if s.generation == generation {
		s.cached = cfg
		s.loadedAt = s.now()
		s.valid = true
	}
	s.mu.Unlock()
	return cfg
}

func (s *RetrievalSettings) SetDistanceThreshold(ctx context.Context, value float64) (domain.RetrievalConfig, error) {
	if err := domain.ValidateDistanceThreshold(value); err != nil {
		return domain.RetrievalConfig{}, err
	}

	cfg := s.Current(ctx)
	cfg.DistanceThreshold = value
	cfg.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, cfg); err != nil {
		return domain.RetrievalConfig{}, fmt.Errorf("save retrieval settings: %w", err)
	}

	s.Invalidate()
	s.logger.Info("distance threshold updated", "distance_threshold", value)
	return cfg, nil
}

func (s *RetrievalSettings) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.generation++
	s.mu.Unlock()
	// Later callers must not join a load that started before the invalidation.
	s.refill.Forget(refillKey)
}
