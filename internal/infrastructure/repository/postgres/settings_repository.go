package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

// SettingsRepository stores the single retrieval_settings row.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsDDL = `
CREATE TABLE IF NOT EXISTS retrieval_settings (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	distance_threshold DOUBLE PRECISION NOT NULL CHECK (distance_threshold >= 0 AND distance_threshold <= 2),
	candidate_limit INTEGER NOT NULL CHECK (candidate_limit > 0),
	updated_at TIMESTAMPTZ NOT NULL
);
`

func (r *SettingsRepository) EnsureSchema(ctx context.Context) error {
	return applySchema(ctx, r.db, settingsDDL)
}

func (r *SettingsRepository) Load(ctx context.Context) (domain.RetrievalConfig, bool, error) {
	var cfg domain.RetrievalConfig
	err := r.db.QueryRowContext(ctx, `
SELECT distance_threshold, candidate_limit, updated_at
FROM retrieval_settings
WHERE id = 1
`).Scan(&cfg.DistanceThreshold, &cfg.CandidateLimit, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RetrievalConfig{}, false, nil
		}
		return domain.RetrievalConfig{}, false, fmt.Errorf("load retrieval settings: %w", err)
	}
	return cfg, true, nil
}

func (r *SettingsRepository) Save(ctx context.Context, cfg domain.RetrievalConfig) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO retrieval_settings (id, distance_threshold, candidate_limit, updated_at)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	distance_threshold = EXCLUDED.distance_threshold,
	candidate_limit = EXCLUDED.candidate_limit,
	updated_at = EXCLUDED.updated_at
`, cfg.DistanceThreshold, cfg.CandidateLimit, cfg.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save retrieval settings: %w", err)
	}
	return nil
}
