package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/config"
	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

type ingestorFake struct {
	err      error
	uploaded domain.UploadRequest
	body     string
}

func (f *ingestorFake) Upload(_ context.Context, req domain.UploadRequest) (*domain.Source, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.uploaded = req
	f.body = string(raw)
	if f.err != nil {
		return nil, f.err
	}
	level, err := domain.ParseLevel(string(req.Level))
	if err != nil {
		return nil, err
	}
	return &domain.Source{
		SourceID:   "src-1",
		SourceName: req.Filename,
		Level:      level,
		Topic:      req.Topic,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (f *ingestorFake) Reindex(_ context.Context, sourceID string) (*domain.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Source{SourceID: sourceID, Status: domain.StatusPending}, nil
}

type sourcesFake struct {
	err       error
	listLimit int
}

func (f *sourcesFake) GetSourceStatus(_ context.Context, sourceID string) (*domain.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	chunks := 3
	indexedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Source{
		SourceID:      sourceID,
		SourceName:    "handbook.pdf",
		Status:        domain.StatusSuccess,
		ChunksWritten: &chunks,
		IndexedAt:     &indexedAt,
	}, nil
}

func (f *sourcesFake) ListSources(_ context.Context, limit int) ([]domain.Source, error) {
	f.listLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

type searcherFake struct {
	results []domain.SearchResult
	err     error
	lastReq domain.SearchRequest
}

func (f *searcherFake) Search(_ context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *searcherFake) Diagnose(_ context.Context, req domain.SearchRequest) (*domain.SearchDiagnostics, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchDiagnostics{
		Query:           req.Query,
		NormalizedQuery: strings.ToLower(req.Query),
		Threshold:       domain.DefaultDistanceThreshold,
		Results:         f.results,
	}, nil
}

type adminFake struct {
	purged    int
	purgeErr  error
	cfg       domain.RetrievalConfig
	setErr    error
	setCalled bool
}

func (f *adminFake) PurgeAllChunks(context.Context) (int, error) {
	return f.purged, f.purgeErr
}

func (f *adminFake) RetrievalConfig(context.Context) domain.RetrievalConfig {
	return f.cfg
}

func (f *adminFake) SetDistanceThreshold(_ context.Context, value float64) (domain.RetrievalConfig, error) {
	f.setCalled = true
	if f.setErr != nil {
		return domain.RetrievalConfig{}, f.setErr
	}
	f.cfg.DistanceThreshold = value
	return f.cfg, nil
}

type filesFake struct {
	files map[string]string
}

func (f filesFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrSourceNotFound, "open file", io.EOF)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type testRouter struct {
	ingestor *ingestorFake
	sources  *sourcesFake
	searcher *searcherFake
	admin    *adminFake
	handler  http.Handler
}

func newTestRouter(cfg config.Config) *testRouter {
	tr := &testRouter{
		ingestor: &ingestorFake{},
		sources:  &sourcesFake{},
		searcher: &searcherFake{},
		admin:    &adminFake{cfg: domain.DefaultRetrievalConfig()},
	}
	tr.handler = NewRouter(cfg, Dependencies{
		Ingestor: tr.ingestor,
		Sources:  tr.sources,
		Searcher: tr.searcher,
		Admin:    tr.admin,
		Files:    filesFake{files: map[string]string{"src-1_notes.txt": "hello corpus"}},
		Logger:   slog.New(slog.DiscardHandler),
	}).Handler()
	return tr
}
