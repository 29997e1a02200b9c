package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrEmbeddingUnavailable, "embed chunks", cause)

	if !errors.Is(err, ErrEmbeddingUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause in chain, got %v", err)
	}
	if err.Error() != "embed chunks: embedding service unavailable: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if WrapError(ErrTemporary, "noop", nil) != nil {
		t.Fatal("wrapping nil must stay nil")
	}
}

func TestKindName(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "Internal"},
		{"direct", ErrExtractionEmpty, "ExtractionEmpty"},
		{"wrapped", fmt.Errorf("stage: %w", WrapError(ErrIndexingBatchFailed, "write", errors.New("tx"))), "IndexingBatchFailed"},
		{"pipeline kind wins over temporary", WrapError(ErrTemporary, "ollama", WrapError(ErrExtractionUnavailable, "generate", errors.New("503"))), "ExtractionUnavailable"},
		{"temporary alone", WrapError(ErrTemporary, "nats", errors.New("closed")), "Temporary"},
		{"not found", WrapError(ErrSourceNotFound, "get", errors.New("no rows")), "SourceNotFound"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindName(tc.err); got != tc.want {
				t.Fatalf("KindName() = %q, want %q", got, tc.want)
			}
		})
	}
}
