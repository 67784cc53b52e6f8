// Package worker runs background tasks (encode, decode, tool execution) on a
// fixed set of goroutines draining a bounded queue.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

// Task is a unit of deferred work. It owns nothing beyond its closure.
type Task func(context.Context) error

// Config holds pool sizing.
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns a small pool suited to a single device.
func DefaultConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 64,
	}
}

// Pool is a fixed-size worker pool.
type Pool struct {
	cfg    Config
	ch     chan Task
	quit   chan struct{}
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	closeOnce sync.Once

	onError func(error)
}

// New creates a pool. Call Start before submitting blocking work.
func New(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Pool{
		cfg:    cfg,
		ch:     make(chan Task, cfg.QueueSize),
		quit:   make(chan struct{}),
		logger: log.Or(logger, "worker"),
	}
}

// OnError registers a callback for task errors and recovered panics.
func (p *Pool) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Start launches the workers. They stop when ctx is cancelled or the pool is closed.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.ch:
			if !ok {
				return
			}
			p.run(ctx, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	if task == nil {
		return
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r}
			}
		}()
		err = task(ctx)
	}()
	if err == nil {
		return
	}
	p.logger.Warn("task failed", "error", err)
	p.mu.RLock()
	fn := p.onError
	p.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Submit enqueues a task, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrClosed
	}
}

// TrySubmit enqueues a task without blocking.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.ch)
}

// Close stops accepting tasks, lets workers drain the queue and waits for them.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)

		p.mu.Lock()
		p.closed = true
		close(p.ch)
		p.mu.Unlock()
	})
	p.wg.Wait()
}
