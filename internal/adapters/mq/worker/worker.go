// Package worker runs queued allocation passes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/okian/seatalloc/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Request abstracts what workers read off the queue.
type Request = model.PassRequest

// Runner executes one queued pass.
type Runner interface {
	RunQueued(ctx context.Context, req Request) error
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Request
}

// Worker processes pass requests until its queue closes or ctx is done.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing pass requests.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	name   string
	active *atomic.Int32
	total  int

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		runner:   runner,
		name:     "worker",
		active:   new(atomic.Int32),
		total:    1,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			if err := w.process(ctx, req); err != nil {
				w.logger.Error(ctx, "queued pass failed",
					logger.String("pass_id", req.ID),
					logger.String("category", string(req.Category)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker without waiting for the queue to drain.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, req Request) error {
	start := time.Now()
	n := int(w.active.Add(1))
	metrics.UpdateWorkerActiveCount(n)
	metrics.UpdateWorkerIdleCount(w.total - n)
	defer func() {
		n := int(w.active.Add(-1))
		metrics.UpdateWorkerActiveCount(n)
		metrics.UpdateWorkerIdleCount(w.total - n)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.runner.RunQueued(ctx, req); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "pass_failed")
		return fmt.Errorf("pass %s: %w", req.ID, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A count below 1 uses the default.
func NewPool(workerCount int, queue Queue, runner Runner) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	active := new(atomic.Int32)
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, runner,
			WithName("worker-"+strconv.Itoa(i)),
			withSharedGauge(active, workerCount),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for queued passes to finish. Workers
// still busy when ctx (or the pool timeout) expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			// shutdownCtx is already done, so this only signals the worker.
			if err := w.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("worker %d: %w", i, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("worker pool drain: %w", errors.Join(errs...))
	}
	return nil
}
