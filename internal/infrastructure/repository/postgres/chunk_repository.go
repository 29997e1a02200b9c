package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

// ChunkRepository is the pgvector-backed chunk corpus. Distances are cosine
// distances computed by the <=> operator, in [0, 2].
type ChunkRepository struct {
	db         *sql.DB
	dimensions int
}

func NewChunkRepository(db *sql.DB, dimensions int) *ChunkRepository {
	return &ChunkRepository{db: db, dimensions: dimensions}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	if r.dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", r.dimensions)
	}
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
	id UUID PRIMARY KEY,
	source_id TEXT NOT NULL,
	source_name TEXT NOT NULL,
	level TEXT NOT NULL,
	topic TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	chunk_number INTEGER NOT NULL CHECK (chunk_number >= 1),
	download_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	embedding vector(%d) NOT NULL,
	UNIQUE (source_id, chunk_number)
);

CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);
`, r.dimensions)
	return applySchema(ctx, r.db, ddl)
}

// WriteBatch inserts the chunks in one transaction.
func (r *ChunkRepository) WriteBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if r.dimensions > 0 && len(c.Embedding) != r.dimensions {
			return fmt.Errorf("chunk %s/%d: embedding has %d dimensions, want %d", c.SourceID, c.ChunkNumber, len(c.Embedding), r.dimensions)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunks (id, source_id, source_name, level, topic, text, chunk_number, download_url, created_at, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
			c.ID, c.SourceID, c.SourceName, string(c.Level), c.Topic, c.Text, c.ChunkNumber, c.DownloadURL,
			c.CreatedAt.UTC(), pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk batch: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete source chunks: %w", err)
	}
	return rowsAffected(res)
}

// DeleteBatch removes at most limit chunks from anywhere in the corpus.
func (r *ChunkRepository) DeleteBatch(ctx context.Context, limit int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM chunks
WHERE id IN (SELECT id FROM chunks ORDER BY id LIMIT $1)
`, limit)
	if err != nil {
		return 0, fmt.Errorf("delete chunk page: %w", err)
	}
	return rowsAffected(res)
}

func (r *ChunkRepository) CountBySource(ctx context.Context, sourceID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE source_id = $1`, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count source chunks: %w", err)
	}
	return n, nil
}

func (r *ChunkRepository) FindNearest(ctx context.Context, queryVector []float32, limit int) ([]domain.SearchResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT source_id, source_name, level, topic, text, chunk_number, download_url, embedding <=> $1 AS distance
FROM chunks
ORDER BY embedding <=> $1
LIMIT $2
`, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchResult, 0, max(limit, 0))
	for rows.Next() {
		var res domain.SearchResult
		var level string
		if err := rows.Scan(&res.SourceID, &res.SourceName, &level, &res.Topic, &res.Text, &res.ChunkNumber, &res.DownloadURL, &res.Distance); err != nil {
			return nil, fmt.Errorf("scan nearest chunk: %w", err)
		}
		res.Level = domain.SourceLevel(level)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest chunks: %w", err)
	}
	return out, nil
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
