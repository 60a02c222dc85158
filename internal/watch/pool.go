package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned when the pool cannot accept more files.
var ErrQueueFull = errors.New("worker queue full")

// Handler processes one file.
type Handler func(ctx context.Context, path string) error

// Pool runs a fixed number of workers over a shared queue of file paths.
// All workers pull from the same channel, so load balances naturally.
type Pool struct {
	logger      *slog.Logger
	workerCount int
	queue       chan string
	handler     Handler
	wg          sync.WaitGroup

	inFlight  atomic.Int32
	processed atomic.Int64
	failed    atomic.Int64
}

// PoolStatus is a snapshot of pool activity.
type PoolStatus struct {
	Workers    int   `json:"workers"`
	InFlight   int   `json:"in_flight"`
	QueueDepth int   `json:"queue_depth"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
}

// NewPool creates a pool. Non-positive sizes fall back to one worker and a
// queue of 1000.
func NewPool(workers, queueSize int, handler Handler, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Pool{
		logger:      logger.With("workers", workers),
		workerCount: workers,
		queue:       make(chan string, queueSize),
		handler:     handler,
	}
}

// Start launches the workers. They exit when ctx is cancelled; Wait blocks
// until they have.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until all workers have returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-p.queue:
			p.inFlight.Add(1)
			err := p.handler(ctx, path)
			p.inFlight.Add(-1)
			if err != nil {
				p.failed.Add(1)
				p.logger.Error("file failed", "worker_id", id, "path", path, "error", err)
				continue
			}
			p.processed.Add(1)
		}
	}
}

// Submit queues a path without blocking.
func (p *Pool) Submit(path string) error {
	select {
	case p.queue <- path:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, path)
	}
}

// Status returns current pool status.
func (p *Pool) Status() PoolStatus {
	return PoolStatus{
		Workers:    p.workerCount,
		InFlight:   int(p.inFlight.Load()),
		QueueDepth: len(p.queue),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
	}
}
