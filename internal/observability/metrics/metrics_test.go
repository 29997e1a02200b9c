package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/sources/abc":         "/v1/sources/{source_id}",
		"/v1/sources/abc/reindex": "/v1/sources/{source_id}/reindex",
		"/v1/files/abc_doc.pdf":   "/v1/files/{key}",
		"/v1/search":              "/v1/search",
		"/v1/sources":             "/v1/sources",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordSearchOutcomes(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.RecordSearch("api", "search", 3, 10*time.Millisecond, nil)
	m.RecordSearch("api", "search", 0, 10*time.Millisecond, nil)
	m.RecordSearch("api", "search", 0, 10*time.Millisecond, errors.New("down"))

	for _, outcome := range []string{"hit", "no_match", "error"} {
		if got := testutil.ToFloat64(m.searchTotal.WithLabelValues("api", "search", outcome)); got != 1 {
			t.Fatalf("expected one %s search, got %v", outcome, got)
		}
	}
}

func TestMiddlewareCountsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sources/missing", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/sources/{source_id}", "404"))
	if got != 1 {
		t.Fatalf("expected one counted request, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "corpus_http_requests_total") {
		t.Fatalf("expected exported request counter, got %s", rec.Body.String())
	}
}

func TestWorkerMetricsFinishSource(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartSource()
	m.FinishSource("worker", time.Second, true, "", 4)
	m.StartSource()
	m.FinishSource("worker", time.Second, false, "EmbeddingUnavailable", 0)
	m.StartSource()
	m.FinishSource("worker", time.Second, false, "", 0)

	if got := testutil.ToFloat64(m.chunksWritten.WithLabelValues("worker")); got != 4 {
		t.Fatalf("expected 4 chunks written, got %v", got)
	}
	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "error", "EmbeddingUnavailable")); got != 1 {
		t.Fatalf("expected one embedding failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "error", "Internal")); got != 1 {
		t.Fatalf("expected unnamed failure counted as Internal, got %v", got)
	}
	if got := testutil.ToFloat64(m.processInFlight); got != 0 {
		t.Fatalf("expected no in-flight sources, got %v", got)
	}
}
