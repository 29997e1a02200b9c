package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/chunking"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/extractor"
)

type processFixture struct {
	uc        *ProcessDocumentUseCase
	repo      *sourceRepoFake
	store     *chunkStoreFake
	storage   *storageFake
	extractor *extractorFake
	embedder  *embedderFake
	corpus    *CorpusService
}

func newProcessFixture(t *testing.T, chunker windowChunker) *processFixture {
	t.Helper()
	f := &processFixture{
		repo:      newSourceRepoFake(),
		store:     &chunkStoreFake{},
		storage:   newStorageFake(),
		extractor: &extractorFake{},
		embedder:  &embedderFake{},
	}
	logger := discardLogger()
	tracker := NewStatusTracker(f.repo, logger)
	indexer := NewIndexer(f.store, f.embedder, IndexerOptions{Logger: logger})
	f.uc = NewProcessDocumentUseCase(f.repo, f.storage, f.extractor, chunker, indexer, tracker, logger)
	f.corpus = NewCorpusService(f.repo, indexer, NewRetrievalSettings(&settingsStoreFake{}, 0, logger))
	return f
}

func (f *processFixture) upload(id, name, text string) domain.ProcessRequest {
	key := id + "_" + name
	f.storage.objects[key] = []byte(text)
	return domain.ProcessRequest{
		SourceID:    id,
		SourceName:  name,
		Level:       domain.LevelMedium,
		Topic:       "support",
		DownloadURL: "file://" + key,
		MimeType:    "text/plain",
	}
}

func TestProcessDocumentSuccess(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	req := f.upload("s-1", "faq.txt", strings.Repeat("x", 25))

	result := f.uc.ProcessDocument(context.Background(), req)
	if !result.Success || result.ChunksWritten != 3 || result.Error != "" || result.Kind != "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	got := f.repo.get("s-1")
	if got.Status != domain.StatusSuccess || got.ChunksWritten == nil || *got.ChunksWritten != 3 || got.IndexedAt == nil {
		t.Fatalf("unexpected source record: %+v", got)
	}
	if got.ProgressNote != "" || got.ErrorMessage != "" {
		t.Fatalf("expected note and error cleared: %+v", got)
	}

	wantStatuses := []domain.IndexingStatus{domain.StatusProcessing, domain.StatusProcessing, domain.StatusProcessing, domain.StatusSuccess}
	statuses := f.repo.statuses()
	if len(statuses) != len(wantStatuses) {
		t.Fatalf("unexpected status sequence: %v", statuses)
	}
	for i := range wantStatuses {
		if statuses[i] != wantStatuses[i] {
			t.Fatalf("unexpected status sequence: %v", statuses)
		}
	}
	if note := f.repo.updates[2].ProgressNote; note != "Indexing 3 chunks..." {
		t.Fatalf("unexpected indexing note %q", note)
	}
}

func TestProcessDocumentEmptyTextFailsChunking(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	empty := ""
	f.extractor.text = &empty
	req := f.upload("s-1", "blank.txt", "")

	result := f.uc.ProcessDocument(context.Background(), req)
	if result.Success || result.Kind != "ChunkingProducedNothing" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.HasPrefix(result.Error, "chunking failed") {
		t.Fatalf("expected stage prefix, got %q", result.Error)
	}
	got := f.repo.get("s-1")
	if got.Status != domain.StatusFailed || got.ErrorMessage != result.Error {
		t.Fatalf("unexpected source record: %+v", got)
	}
	assertStatusInvariant(t, got)
}

// An empty upload never reaches the chunker with the production adapters:
// extraction rejects blank text first, so the run fails as ExtractionEmpty.
func TestProcessDocumentEmptyUploadFailsExtractionWithRealAdapters(t *testing.T) {
	repo := newSourceRepoFake()
	storage := newStorageFake()
	logger := discardLogger()
	indexer := NewIndexer(&chunkStoreFake{}, &embedderFake{}, IndexerOptions{Logger: logger})
	uc := NewProcessDocumentUseCase(repo, storage, extractor.New(nil), chunking.NewSplitter(0, 0),
		indexer, NewStatusTracker(repo, logger), logger)

	storage.objects["s-1_blank.txt"] = []byte("")
	result := uc.ProcessDocument(context.Background(), domain.ProcessRequest{
		SourceID:    "s-1",
		SourceName:  "blank.txt",
		DownloadURL: "file://s-1_blank.txt",
		MimeType:    "text/plain",
	})
	if result.Success || result.Kind != "ExtractionEmpty" || !strings.HasPrefix(result.Error, "extraction failed") {
		t.Fatalf("unexpected result: %+v", result)
	}
	got := repo.get("s-1")
	if got.Status != domain.StatusFailed || got.ErrorMessage != result.Error {
		t.Fatalf("unexpected source record: %+v", got)
	}
	assertStatusInvariant(t, got)
}

func TestPurgeAfterIngestionLeavesSourceRecordAlone(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	req := f.upload("s-1", "faq.txt", strings.Repeat("y", 30))

	if result := f.uc.ProcessDocument(context.Background(), req); !result.Success || result.ChunksWritten != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	before := f.repo.get("s-1")

	removed, err := f.corpus.PurgeAllChunks(context.Background())
	if err != nil {
		t.Fatalf("PurgeAllChunks() error = %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if n, _ := f.store.CountBySource(context.Background(), "s-1"); n != 0 {
		t.Fatalf("expected empty corpus, got %d chunks", n)
	}
	after := f.repo.get("s-1")
	if after.Status != before.Status || *after.ChunksWritten != *before.ChunksWritten || !after.IndexedAt.Equal(*before.IndexedAt) {
		t.Fatalf("purge modified source record: before %+v after %+v", before, after)
	}
}

func TestReprocessReplacesAllPreviousChunks(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	ctx := context.Background()

	req := f.upload("s-1", "faq.txt", strings.Repeat("a", 50))
	if result := f.uc.ProcessDocument(ctx, req); result.ChunksWritten != 5 {
		t.Fatalf("expected 5 chunks, got %+v", result)
	}

	req = f.upload("s-1", "faq.txt", strings.Repeat("b", 30))
	result := f.uc.ProcessDocument(ctx, req)
	if !result.Success || result.ChunksWritten != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	texts := f.store.textsFor("s-1")
	if len(texts) != 3 {
		t.Fatalf("expected exactly 3 chunks, got %d", len(texts))
	}
	for _, text := range texts {
		if strings.Contains(text, "a") {
			t.Fatalf("old chunk survived: %q", text)
		}
	}
	if got := f.repo.get("s-1"); *got.ChunksWritten != 3 {
		t.Fatalf("expected chunks_written=3, got %d", *got.ChunksWritten)
	}
}

func TestProcessDocumentIsIdempotent(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 7})
	req := f.upload("s-1", "faq.txt", "the quick brown fox jumps over the lazy dog")

	first := f.uc.ProcessDocument(context.Background(), req)
	firstTexts := f.store.textsFor("s-1")
	second := f.uc.ProcessDocument(context.Background(), req)
	secondTexts := f.store.textsFor("s-1")

	if first.ChunksWritten != second.ChunksWritten || strings.Join(firstTexts, "|") != strings.Join(secondTexts, "|") {
		t.Fatalf("re-run changed the index: %v vs %v", firstTexts, secondTexts)
	}
}

func TestProcessDocumentExtractionFailureKeepsPriorChunks(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	req := f.upload("s-1", "faq.txt", strings.Repeat("a", 20))
	if result := f.uc.ProcessDocument(context.Background(), req); !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}

	f.extractor.err = domain.WrapError(domain.ErrExtractionUnavailable, "generate", errors.New("connection refused"))
	result := f.uc.ProcessDocument(context.Background(), req)
	if result.Success || result.Kind != "ExtractionUnavailable" || !strings.HasPrefix(result.Error, "extraction failed") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if n, _ := f.store.CountBySource(context.Background(), "s-1"); n != 2 {
		t.Fatalf("expected prior chunks to survive, got %d", n)
	}
	got := f.repo.get("s-1")
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	assertStatusInvariant(t, got)
}

func TestProcessDocumentFetchFailureIsExtractionUnavailable(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	f.storage.fetchErr = errors.New("bucket unreachable")

	result := f.uc.ProcessDocument(context.Background(), domain.ProcessRequest{SourceID: "s-1", DownloadURL: "file://missing"})
	if result.Success || result.Kind != "ExtractionUnavailable" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessDocumentInvalidChunkConfig(t *testing.T) {
	f := newProcessFixture(t, windowChunker{err: domain.WrapError(domain.ErrInvalidChunkConfig, "chunk", errors.New("overlap >= size"))})
	req := f.upload("s-1", "faq.txt", "text")

	result := f.uc.ProcessDocument(context.Background(), req)
	if result.Success || result.Kind != "InvalidChunkConfig" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessDocumentEmbeddingFailure(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	f.embedder.err = errors.New("model not loaded")
	req := f.upload("s-1", "faq.txt", "text")

	result := f.uc.ProcessDocument(context.Background(), req)
	if result.Success || result.Kind != "EmbeddingUnavailable" || !strings.HasPrefix(result.Error, "indexing failed") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessDocumentSwallowsProgressWriteFailures(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	f.repo.failStatus = domain.StatusProcessing
	req := f.upload("s-1", "faq.txt", "some text")

	result := f.uc.ProcessDocument(context.Background(), req)
	if !result.Success {
		t.Fatalf("expected progress write failures to be ignored: %+v", result)
	}
	if got := f.repo.get("s-1"); got.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", got.Status)
	}
}

func TestProcessDocumentReportsFinalStatusWriteFailure(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	f.repo.failStatus = domain.StatusSuccess
	req := f.upload("s-1", "faq.txt", "some text")

	result := f.uc.ProcessDocument(context.Background(), req)
	if result.Success || result.Kind != "StatusWriteFailed" || result.ChunksWritten != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	got := f.repo.get("s-1")
	if got.Status != domain.StatusFailed || got.ErrorMessage != result.Error {
		t.Fatalf("expected record marked failed after the success write was refused: %+v", got)
	}
	if got.ProgressNote != "" {
		t.Fatalf("expected progress note cleared, got %q", got.ProgressNote)
	}
	assertStatusInvariant(t, got)
}

func TestProcessDocumentRequiresSourceID(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})

	result := f.uc.ProcessDocument(context.Background(), domain.ProcessRequest{})
	if result.Success || result.Kind != "InvalidInput" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.repo.updates) != 0 {
		t.Fatalf("expected no status writes, got %d", len(f.repo.updates))
	}
}

func TestProcessDocumentPicksDeepModeForScans(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	req := f.upload("s-1", "invoice_scan.pdf", "scanned")
	req.MimeType = "application/pdf"

	f.uc.ProcessDocument(context.Background(), req)
	if len(f.extractor.modes) != 1 || f.extractor.modes[0] != domain.ExtractionDeep {
		t.Fatalf("expected deep extraction, got %v", f.extractor.modes)
	}
}

func TestProcessDocumentConcurrentRunsOnSameSource(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	req := f.upload("s-1", "faq.txt", strings.Repeat("z", 40))

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.uc.ProcessDocument(context.Background(), req)
		}()
	}
	wg.Wait()

	if n, _ := f.store.CountBySource(context.Background(), "s-1"); n != 4 {
		t.Fatalf("expected 4 chunks after concurrent runs, got %d", n)
	}
	if f.uc.locks.size() != 0 {
		t.Fatalf("expected lock table to drain")
	}
}

func TestProcessByIDUsesStoredRecord(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	f.storage.objects["s-1_faq.txt"] = []byte("stored text")
	f.repo.sources["s-1"] = domain.Source{
		SourceID:    "s-1",
		SourceName:  "faq.txt",
		StoragePath: "s-1_faq.txt",
		MimeType:    "text/plain",
		Status:      domain.StatusPending,
	}

	result, err := f.uc.ProcessByID(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if !result.Success || result.ChunksWritten != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessByIDFetchesByStorageKeyAndCitesDownloadURL(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})
	f.storage.objects["s-1_faq.txt"] = []byte("stored text")
	f.repo.sources["s-1"] = domain.Source{
		SourceID:    "s-1",
		SourceName:  "faq.txt",
		StoragePath: "s-1_faq.txt",
		DownloadURL: "https://old-files.example.com/files/s-1_faq.txt",
		MimeType:    "text/plain",
		Status:      domain.StatusPending,
	}

	result, err := f.uc.ProcessByID(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected fetch by storage key to succeed: %+v", result)
	}
	if len(f.store.chunks) == 0 {
		t.Fatalf("expected chunks to be written")
	}
	for _, c := range f.store.chunks {
		if c.DownloadURL != "https://old-files.example.com/files/s-1_faq.txt" {
			t.Fatalf("expected chunks to cite the download url, got %q", c.DownloadURL)
		}
	}
}

func TestProcessByIDUnknownSource(t *testing.T) {
	f := newProcessFixture(t, windowChunker{size: 10})

	result, err := f.uc.ProcessByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if result.Success || result.Kind != "SourceNotFound" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
