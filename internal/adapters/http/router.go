package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/config"
	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
	"github.com/kirillkom/grounding-corpus/internal/observability/metrics"
)

const (
	serviceName      = "api"
	backpressureWait = 250 * time.Millisecond
	searchFailedText = "search unavailable"
)

// FileOpener streams stored source files back to clients.
type FileOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type Dependencies struct {
	Ingestor ports.DocumentIngestor
	Sources  ports.SourceReader
	Searcher ports.CorpusSearcher
	Admin    ports.CorpusAdmin
	Files    FileOpener
	Metrics  *metrics.HTTPServerMetrics
	Logger   *slog.Logger
}

type Router struct {
	ingestor ports.DocumentIngestor
	sources  ports.SourceReader
	searcher ports.CorpusSearcher
	admin    ports.CorpusAdmin
	files    FileOpener
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger

	adminAPIKey    string
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	maxUploadBytes int64
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingestor:       deps.Ingestor,
		sources:        deps.Sources,
		searcher:       deps.Searcher,
		admin:          deps.Admin,
		files:          deps.Files,
		metrics:        deps.Metrics,
		logger:         logger,
		adminAPIKey:    cfg.AdminAPIKey,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/sources", rt.uploadSource)
	mux.HandleFunc("GET /v1/sources", rt.listSources)
	mux.HandleFunc("GET /v1/sources/{id}", rt.getSource)
	mux.HandleFunc("POST /v1/sources/{id}/reindex", requireAdmin(rt.adminAPIKey, rt.reindexSource))
	mux.HandleFunc("GET /v1/files/{key}", rt.downloadFile)

	mux.HandleFunc("POST /v1/search", rt.search)
	mux.HandleFunc("POST /v1/search/diagnostics", requireAdmin(rt.adminAPIKey, rt.searchDiagnostics))

	mux.HandleFunc("DELETE /v1/chunks", requireAdmin(rt.adminAPIKey, rt.purgeChunks))
	mux.HandleFunc("GET /v1/settings/retrieval", rt.getRetrievalSettings)
	mux.HandleFunc("PUT /v1/settings/retrieval", requireAdmin(rt.adminAPIKey, rt.setRetrievalSettings))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadSource(w http.ResponseWriter, r *http.Request) {
	if rt.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	source, err := rt.ingestor.Upload(r.Context(), domain.UploadRequest{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Level:    domain.SourceLevel(r.FormValue("level")),
		Topic:    r.FormValue("topic"),
		Body:     file,
	})
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, source)
}

func (rt *Router) listSources(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	sources, err := rt.sources.ListSources(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (rt *Router) getSource(w http.ResponseWriter, r *http.Request) {
	source, err := rt.sources.GetSourceStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, source)
}

func (rt *Router) reindexSource(w http.ResponseWriter, r *http.Request) {
	source, err := rt.ingestor.Reindex(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, source)
}

func (rt *Router) downloadFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	body, err := rt.files.Open(r.Context(), key)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		rt.logger.Warn("file download interrupted", "key", key, "error", err)
	}
}

type searchRequest struct {
	Query             string   `json:"query"`
	DistanceThreshold *float64 `json:"distance_threshold,omitempty"`
	Limit             int      `json:"limit,omitempty"`
}

func (req searchRequest) toDomain() domain.SearchRequest {
	return domain.SearchRequest{
		Query:             req.Query,
		DistanceThreshold: req.DistanceThreshold,
		Limit:             req.Limit,
	}
}

type searchResponse struct {
	Success bool                  `json:"success"`
	Results []domain.SearchResult `json:"results"`
}

type searchFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// search answers with an envelope; retrieval failures are reported as a
// generic 503 and detailed only in logs and the diagnostics endpoint.
func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, searchFailure{Error: "invalid json"})
		return
	}

	start := time.Now()
	results, err := rt.searcher.Search(r.Context(), req.toDomain())
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, "search", len(results), time.Since(start), err)
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, searchFailure{Error: err.Error()})
			return
		}
		rt.logger.Error("search failed",
			"request_id", requestIDFromContext(r.Context()),
			"kind", domain.KindName(err),
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, searchFailure{Error: searchFailedText})
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Results: results})
}

func (rt *Router) searchDiagnostics(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	diag, err := rt.searcher.Diagnose(r.Context(), req.toDomain())
	if rt.metrics != nil {
		count := 0
		if diag != nil {
			count = len(diag.Results)
		}
		rt.metrics.RecordSearch(serviceName, "diagnostics", count, time.Since(start), err)
	}
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{
			"error": err.Error(),
			"kind":  domain.KindName(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func (rt *Router) purgeChunks(w http.ResponseWriter, r *http.Request) {
	removed, err := rt.admin.PurgeAllChunks(r.Context())
	if rt.metrics != nil {
		rt.metrics.RecordPurge(removed)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": removed})
}

func (rt *Router) getRetrievalSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.admin.RetrievalConfig(r.Context()))
}

func (rt *Router) setRetrievalSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DistanceThreshold *float64 `json:"distance_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.DistanceThreshold == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "distance_threshold is required"})
		return
	}

	cfg, err := rt.admin.SetDistanceThreshold(r.Context(), *req.DistanceThreshold)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"kind", domain.KindName(err),
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
