package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const (
	DefaultConcurrency    = 4
	DefaultProcessTimeout = 10 * time.Minute
)

// Recorder receives one observation per ingestion run.
type Recorder interface {
	StartSource()
	FinishSource(service string, duration time.Duration, success bool, kind string, chunks int)
	ObserveQueueLag(service string, lag time.Duration)
}

type Options struct {
	Concurrency    int
	ProcessTimeout time.Duration
	Service        string
	Metrics        Recorder
	Logger         *slog.Logger
}

// Dispatcher runs source-uploaded events on a bounded pool. Handle blocks
// while every worker is busy, which holds back the queue subscription.
type Dispatcher struct {
	processor ports.DocumentProcessor
	pool      *ants.Pool
	timeout   time.Duration
	service   string
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewDispatcher(processor ports.DocumentProcessor, opts Options) (*Dispatcher, error) {
	if processor == nil {
		return nil, errors.New("worker dispatcher requires a processor")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := opts.ProcessTimeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	service := opts.Service
	if service == "" {
		service = "worker"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		processor: processor,
		timeout:   timeout,
		service:   service,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
	pool, err := ants.NewPool(concurrency, ants.WithPanicHandler(func(p any) {
		logger.Error("ingestion task panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Handle schedules one ingestion run. The run outlives ctx: it is bounded by
// the process timeout only, so a drained subscription does not abort work in flight.
func (d *Dispatcher) Handle(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "dispatch source", errors.New("empty source id"))
	}
	received := d.now()
	runCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	err := d.pool.Submit(func() {
		defer d.wg.Done()
		d.run(runCtx, sourceID, received)
	})
	if err != nil {
		d.wg.Done()
		return fmt.Errorf("submit source %s: %w", sourceID, err)
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context, sourceID string, received time.Time) {
	started := d.now()
	if d.metrics != nil {
		d.metrics.ObserveQueueLag(d.service, started.Sub(received))
		d.metrics.StartSource()
	}

	processCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.processor.ProcessByID(processCtx, sourceID)
	if err != nil {
		result = domain.ProcessResult{SourceID: sourceID, Error: err.Error(), Kind: domain.KindName(err)}
	}
	duration := d.now().Sub(started)

	if d.metrics != nil {
		d.metrics.FinishSource(d.service, duration, result.Success, result.Kind, result.ChunksWritten)
	}
	if result.Success {
		d.logger.Info("source processed", "source_id", sourceID, "chunks", result.ChunksWritten, "duration", duration)
		return
	}
	d.logger.Warn("source processing failed", "source_id", sourceID, "kind", result.Kind, "error", result.Error, "duration", duration)
}

// Running reports the number of busy workers.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Wait blocks until every submitted run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight runs up to timeout and releases the pool.
func (d *Dispatcher) Close(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warn("worker pool closed with runs still in flight", "running", d.pool.Running())
	}
	d.pool.Release()
}
