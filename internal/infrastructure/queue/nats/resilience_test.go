package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{name: "nil", err: nil},
		{name: "canceled", err: context.Canceled},
		{name: "deadline", err: fmt.Errorf("publish: %w", context.DeadlineExceeded)},
		{name: "no servers", err: nats.ErrNoServers, retryable: true, recordFailure: true},
		{name: "timeout", err: fmt.Errorf("nats publish: %w", nats.ErrTimeout), retryable: true, recordFailure: true},
		{name: "closed", err: nats.ErrConnectionClosed, retryable: true, recordFailure: true},
		{name: "draining", err: nats.ErrConnectionDraining, retryable: true, recordFailure: true},
		{name: "bad subject", err: nats.ErrBadSubject, recordFailure: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.recordFailure {
				t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded("publish", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	err := wrapTemporaryIfNeeded("publish", fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed))
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}

	permanent := errors.New("payload rejected")
	if got := wrapTemporaryIfNeeded("publish", permanent); got != permanent {
		t.Fatalf("expected permanent error to pass through, got %v", got)
	}

	already := domain.WrapError(domain.ErrTemporary, "publish", nats.ErrTimeout)
	if got := wrapTemporaryIfNeeded("publish", already); got != already {
		t.Fatalf("expected already-temporary error unchanged, got %v", got)
	}
}
