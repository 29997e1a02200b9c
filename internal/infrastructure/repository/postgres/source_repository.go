package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourcesDDL = `
CREATE TABLE IF NOT EXISTS sources (
	source_id TEXT PRIMARY KEY,
	source_name TEXT NOT NULL,
	level TEXT NOT NULL CHECK (level IN ('High', 'Medium', 'Low', 'Archive')),
	topic TEXT NOT NULL DEFAULT '',
	download_url TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	indexing_status TEXT NOT NULL CHECK (indexing_status IN ('pending', 'processing', 'success', 'failed')),
	progress_note TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	chunks_written INTEGER CHECK (chunks_written >= 0),
	indexed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT sources_result_fields CHECK (
		CASE WHEN indexing_status = 'success'
			THEN chunks_written IS NOT NULL AND indexed_at IS NOT NULL
			ELSE chunks_written IS NULL AND indexed_at IS NULL
		END
	)
);

CREATE INDEX IF NOT EXISTS idx_sources_status ON sources(indexing_status);
CREATE INDEX IF NOT EXISTS idx_sources_created_at ON sources(created_at DESC);
`

func (r *SourceRepository) EnsureSchema(ctx context.Context) error {
	return applySchema(ctx, r.db, sourcesDDL)
}

// Create inserts a new source record. An existing record with the same id is left untouched.
func (r *SourceRepository) Create(ctx context.Context, src *domain.Source) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sources (
	source_id, source_name, level, topic, download_url, storage_path, mime_type,
	indexing_status, progress_note, error_message, chunks_written, indexed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (source_id) DO NOTHING
`,
		src.SourceID, src.SourceName, string(src.Level), src.Topic, src.DownloadURL, src.StoragePath, src.MimeType,
		string(src.Status), src.ProgressNote, src.ErrorMessage, nullableInt(src.ChunksWritten), nullableTime(src.IndexedAt),
		src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

const sourceColumns = `source_id, source_name, level, topic, download_url, storage_path, mime_type,
	indexing_status, progress_note, error_message, chunks_written, indexed_at, created_at, updated_at`

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+`
FROM sources
WHERE source_id = $1
`, id)

	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSourceNotFound, "get source", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return &src, nil
}

func (r *SourceRepository) List(ctx context.Context, limit int) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sourceColumns+`
FROM sources
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// UpdateStatus replaces every lifecycle column in one statement.
func (r *SourceRepository) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE sources
SET indexing_status = $2, progress_note = $3, error_message = $4, chunks_written = $5, indexed_at = $6, updated_at = $7
WHERE source_id = $1
`, id, string(update.Status), update.ProgressNote, update.ErrorMessage,
		nullableInt(update.ChunksWritten), nullableTime(update.IndexedAt), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update source status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSourceNotFound, "update source status", fmt.Errorf("id %s", id))
	}
	return nil
}

type sourceScanner interface {
	Scan(dest ...any) error
}

func scanSource(row sourceScanner) (domain.Source, error) {
	var src domain.Source
	var level, status string
	var chunks sql.NullInt64
	var indexedAt sql.NullTime

	err := row.Scan(
		&src.SourceID, &src.SourceName, &level, &src.Topic, &src.DownloadURL, &src.StoragePath, &src.MimeType,
		&status, &src.ProgressNote, &src.ErrorMessage, &chunks, &indexedAt, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return domain.Source{}, err
	}
	src.Level = domain.SourceLevel(level)
	src.Status = domain.IndexingStatus(status)
	if chunks.Valid {
		n := int(chunks.Int64)
		src.ChunksWritten = &n
	}
	if indexedAt.Valid {
		at := indexedAt.Time.UTC()
		src.IndexedAt = &at
	}
	return src, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
