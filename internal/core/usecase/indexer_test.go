package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

func numberedChunks(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return out
}

func newTestIndexer(store *chunkStoreFake, embedder *embedderFake, opts IndexerOptions) *Indexer {
	opts.Logger = discardLogger()
	return NewIndexer(store, embedder, opts)
}

func TestIndexWritesContiguousChunkNumbers(t *testing.T) {
	store := &chunkStoreFake{}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{})

	n, err := ix.Index(context.Background(), domain.IndexRequest{
		SourceID:    "s-1",
		SourceName:  "handbook.pdf",
		Level:       domain.LevelHigh,
		Topic:       "returns",
		Chunks:      []string{"one", "two", "three"},
		DownloadURL: "file://s-1_handbook.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Len(t, store.chunks, 3)

	ids := map[string]bool{}
	for i, c := range store.chunks {
		assert.Equal(t, i+1, c.ChunkNumber)
		assert.Equal(t, "s-1", c.SourceID)
		assert.Equal(t, "handbook.pdf", c.SourceName)
		assert.Equal(t, domain.LevelHigh, c.Level)
		assert.Equal(t, "returns", c.Topic)
		assert.Equal(t, "file://s-1_handbook.pdf", c.DownloadURL)
		assert.NotEmpty(t, c.Embedding)
		assert.False(t, c.CreatedAt.IsZero())
		ids[c.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestIndexWritesSequentialBatchesOfAtMost400(t *testing.T) {
	store := &chunkStoreFake{}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{BatchSize: 1000})

	n, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("c", 950)})
	require.NoError(t, err)
	assert.Equal(t, 950, n)
	assert.Equal(t, []int{400, 400, 150}, store.batches)
}

func TestIndexEmbedsInBatches(t *testing.T) {
	embedder := &embedderFake{}
	ix := newTestIndexer(&chunkStoreFake{}, embedder, IndexerOptions{EmbedBatchSize: 64})

	_, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("c", 130)})
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.calls)
}

func TestIndexReplacesPreviousChunks(t *testing.T) {
	store := &chunkStoreFake{}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{})
	ctx := context.Background()

	_, err := ix.Index(ctx, domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("old", 5)})
	require.NoError(t, err)
	_, err = ix.Index(ctx, domain.IndexRequest{SourceID: "s-2", Chunks: numberedChunks("other", 2)})
	require.NoError(t, err)

	n, err := ix.Index(ctx, domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("new", 3)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := store.CountBySource(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"new-1", "new-2", "new-3"}, store.textsFor("s-1"))
	assert.Len(t, store.textsFor("s-2"), 2)
}

func TestIndexIsIdempotent(t *testing.T) {
	store := &chunkStoreFake{}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{})
	req := domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("c", 4)}

	_, err := ix.Index(context.Background(), req)
	require.NoError(t, err)
	first := store.textsFor("s-1")

	_, err = ix.Index(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, store.textsFor("s-1"))
}

func TestIndexEmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	store := &chunkStoreFake{}
	embedder := &embedderFake{}
	ix := newTestIndexer(store, embedder, IndexerOptions{})

	_, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("old", 2)})
	require.NoError(t, err)

	embedder.err = errors.New("connection refused")
	_, err = ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("new", 3)})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrEmbeddingUnavailable))
	assert.Equal(t, []string{"old-1", "old-2"}, store.textsFor("s-1"))
}

func TestIndexRejectsVectorCountMismatch(t *testing.T) {
	ix := newTestIndexer(&chunkStoreFake{}, &embedderFake{shortByOne: true}, IndexerOptions{})

	_, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("c", 2)})
	assert.True(t, domain.IsKind(err, domain.ErrEmbeddingUnavailable))
}

func TestIndexBatchFailureReportsCommittedCount(t *testing.T) {
	store := &chunkStoreFake{failOnBatch: 2}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{})

	n, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: numberedChunks("c", 900)})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrIndexingBatchFailed))
	assert.Contains(t, err.Error(), "batch 2 failed after 400 chunks committed")
	assert.Equal(t, 400, n)
}

func TestIndexDeleteFailureIsBatchFailure(t *testing.T) {
	store := &chunkStoreFake{deleteErr: errors.New("table locked")}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{})

	_, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1", Chunks: []string{"a"}})
	assert.True(t, domain.IsKind(err, domain.ErrIndexingBatchFailed))
	assert.Empty(t, store.batches)
}

func TestIndexWithoutChunks(t *testing.T) {
	ix := newTestIndexer(&chunkStoreFake{}, &embedderFake{}, IndexerOptions{})

	_, err := ix.Index(context.Background(), domain.IndexRequest{SourceID: "s-1"})
	assert.True(t, domain.IsKind(err, domain.ErrChunkingProducedNothing))
}

func TestPurgeAllLoopsUntilShortPage(t *testing.T) {
	cases := []struct {
		name  string
		total int
	}{
		{"empty corpus", 0},
		{"partial last page", 950},
		{"exact multiple", 800},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &chunkStoreFake{}
			for i := range tc.total {
				store.chunks = append(store.chunks, domain.Chunk{SourceID: fmt.Sprintf("s-%d", i%3), ChunkNumber: i})
			}
			ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{PurgePageSize: 400})

			removed, err := ix.PurgeAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.total, removed)
			assert.Empty(t, store.chunks)

			again, err := ix.PurgeAll(context.Background())
			require.NoError(t, err)
			assert.Zero(t, again)
		})
	}
}

func TestPurgeAllFailure(t *testing.T) {
	store := &chunkStoreFake{deleteErr: errors.New("timeout")}
	ix := newTestIndexer(store, &embedderFake{}, IndexerOptions{})

	_, err := ix.PurgeAll(context.Background())
	assert.True(t, domain.IsKind(err, domain.ErrIndexingBatchFailed))
}
