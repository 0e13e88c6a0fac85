package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
)

var ErrDispatcherStopped = errors.New("saga dispatcher is stopped")

// WorkerPool runs saga continuations on a bounded gammazero worker pool. Tasks get
// a context that is cancelled only when Stop's grace period runs out.
type WorkerPool struct {
	pool    *workerpool.WorkerPool
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	logger  *slog.Logger
}

func NewWorkerPool(size int, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		pool:   workerpool.New(size),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

func (d *WorkerPool) Dispatch(task func(ctx context.Context)) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	d.pool.Submit(func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				d.logger.Error("saga task panicked",
					"event", "saga_dispatch_task_panicked",
					"module", "token-distribution/airdrop-claim-service",
					"layer", "adapter",
					"panic", recovered,
				)
			}
		}()
		task(d.ctx)
	})
	return nil
}

// WaitingQueueSize reports tasks submitted but not yet started.
func (d *WorkerPool) WaitingQueueSize() int {
	return d.pool.WaitingQueueSize()
}

// Stop refuses new tasks and waits for queued ones. After grace the shared task
// context is cancelled so ledger calls give up.
func (d *WorkerPool) Stop(grace time.Duration) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.pool.StopWait()
		close(done)
	}()
	if grace <= 0 {
		<-done
		d.cancel()
		return
	}
	select {
	case <-done:
	case <-time.After(grace):
		d.logger.Warn("saga dispatcher grace period elapsed",
			"event", "saga_dispatch_grace_elapsed",
			"module", "token-distribution/airdrop-claim-service",
			"layer", "adapter",
			"grace", grace.String(),
		)
		d.cancel()
		<-done
	}
	d.cancel()
}
