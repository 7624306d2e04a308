package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher runs interactions on a fixed worker pool. The intake side calls
// Submit and blocks only on the reply, never on provider I/O capacity.
type Dispatcher struct {
	handler *Handler
	queue   chan task
	workers int
	logger  *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type task struct {
	ctx    context.Context
	req    Request
	result chan Response
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Handler processes interactions. Required.
	Handler *Handler

	// Workers is the pool size. Default: 8.
	Workers int

	// QueueSize is the pending-interaction capacity. Default: 256.
	QueueSize int

	// Logger is the parent logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		handler: cfg.Handler,
		queue:   make(chan task, cfg.QueueSize),
		workers: cfg.Workers,
		logger:  logger.With("component", "bot.dispatcher"),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the worker pool. Safe to call once.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(i)
		}
		d.logger.Info("dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
	})
}

// Stop drains the pool. Queued interactions are still processed; new Submit
// calls fail.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		close(d.queue)
		d.wg.Wait()
		d.logger.Info("dispatcher stopped")
	})
}

// Submit enqueues an interaction and waits for its reply. Returns
// ErrQueueFull when the queue is at capacity rather than blocking intake.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (Response, error) {
	select {
	case <-d.done:
		return Response{}, fmt.Errorf("dispatcher stopped")
	default:
	}

	t := task{ctx: ctx, req: req, result: make(chan Response, 1)}
	select {
	case d.queue <- t:
	default:
		d.logger.Warn("interaction queue full", "user_id", req.UserID, "command", req.Command)
		return Response{}, ErrQueueFull
	}

	select {
	case resp := <-t.result:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	d.logger.Debug("worker started", "worker", id)
	for t := range d.queue {
		t.result <- d.handler.Handle(t.ctx, t.req)
	}
}
