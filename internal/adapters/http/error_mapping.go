package httpadapter

import (
	"net/http"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

// Checked in order; the first kind found in the error chain wins.
var statusByKind = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrInvalidChunkConfig, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrSourceNotFound, http.StatusNotFound},
	{domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
	{domain.ErrRetrievalQueryFailed, http.StatusServiceUnavailable},
	{domain.ErrIndexingBatchFailed, http.StatusServiceUnavailable},
	{domain.ErrTemporary, http.StatusServiceUnavailable},
}

func mapErrorToHTTPStatus(err error) int {
	for _, m := range statusByKind {
		if domain.IsKind(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
