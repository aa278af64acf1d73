package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is the background execution context. Every task gets its own
// goroutine of an errgroup. An optional limit bounds how many tasks execute
// at the same time, Dispatch itself never blocks.
type Pool struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted

	// mu orders Dispatch against Close
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool whose context derives from parent. A limit <= 0
// means unlimited.
func NewPool(parent context.Context, limit int) *Pool {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		group:  group,
		ctx:    gctx,
		cancel: cancel,
	}
	if limit > 0 {
		p.sem = semaphore.NewWeighted(int64(limit))
	}
	return p
}

// Context is canceled when the pool is closed
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Dispatch runs task on a pool goroutine. Tasks dispatched after Close are
// dropped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Pool) Dispatch(task func()) {
	if task == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		plog.Warningf("background pool is closed, dropping task")
		return
	}
	p.group.Go(func() error {
		if p.sem != nil {
			// tasks already accepted still run after Close
			_ = p.sem.Acquire(context.Background(), 1)
			defer p.sem.Release(1)
		}
		run("background", task)
		return nil
	})
}

// Close cancels the pool context and waits for all accepted tasks
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	_ = p.group.Wait()
}
