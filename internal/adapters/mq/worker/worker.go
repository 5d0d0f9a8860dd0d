// Package worker drains accepted records into the ranking store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/pkg/logger"
	"github.com/okian/hanta/pkg/metrics"
)

// Updater persists a monthly best.
type Updater interface {
	UpsertBest(ctx context.Context, rec model.Record) (bool, error)
}

// Queue defines how workers receive records.
type Queue interface {
	Dequeue() <-chan model.Record
}

// Worker processes records until the queue is drained or ctx ends.
type Worker interface {
	Run(ctx context.Context)
	// Done is closed when Run returns.
	Done() <-chan struct{}
}

// InMemoryWorker implements Worker for one consumer goroutine.
type InMemoryWorker struct {
	queue   Queue
	updater Updater
	name    string

	processed atomic.Int64
	done      chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, updater Updater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   queue,
		updater: updater,
		name:    "worker",
		done:    make(chan struct{}),
		logger:  logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run reads until the queue channel is closed and drained, or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	records := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, rec); err != nil {
				w.logger.Error(ctx, "error persisting record", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Processed returns how many records this worker has handled.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, rec model.Record) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	w.processed.Add(1)

	updated, err := w.updater.UpsertBest(ctx, rec)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "ranking_error")
		w.logger.Error(ctx, "ranking update failed",
			logger.String("record", rec.ID),
			logger.String("name", rec.Name),
			logger.String("mode", string(rec.Mode)),
			logger.Int64("score", rec.Score),
			logger.Error(err),
		)
		return fmt.Errorf("ranking update for record %s: %w", rec.ID, err)
	}
	if updated {
		metrics.RecordRankingUpdate(string(rec.Mode))
	}
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses
// the number of CPUs.
func NewPool(workerCount int, queue Queue, updater Updater) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(queue, updater, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the total number of records handled.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue when it can be closed, then waits for the
// workers to drain it until ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	}
	return nil
}
