// Package worker dispatches ledger events from the queue to handlers.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/pkg/logger"
	"github.com/okian/blindfold/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.Event

// Handler reacts to one event. Handlers must be safe for concurrent use.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) } //nolint:gocritic // hugeParam

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events from a queue.
type Worker interface {
	// Run starts the worker loop until the queue drains, ctx is canceled or
	// Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for dispatching events.
type InMemoryWorker struct {
	queue    Queue
	handlers []Handler
	name     string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, handlers []Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		handlers: handlers,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			w.dispatch(ctx, event)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// dispatch hands event to every handler. A failing handler does not stop
// the others.
func (w *InMemoryWorker) dispatch(ctx context.Context, event Event) { //nolint:gocritic // hugeParam
	start := time.Now()
	defer func() {
		metrics.RecordEventDispatchLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	for _, h := range w.handlers {
		if err := h.Handle(ctx, event); err != nil {
			metrics.RecordEventDispatchError()
			w.logger.Error(ctx, "event handler failed",
				logger.String("kind", string(event.Kind)),
				logger.Uint64("height", event.Height),
				logger.Error(err),
			)
		}
	}
	metrics.RecordEventDispatched(string(event.Kind))
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A nil log discards output.
func NewPool(workerCount int, queue Queue, handlers []Handler, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if log == nil {
		log = logger.NewNop()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  log.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, handlers,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(log),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the queue, lets the workers drain what is left, and
// stops any worker still running when ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			_ = worker.Shutdown(context.Background())
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", shutdownCtx.Err())
	}
	return nil
}
