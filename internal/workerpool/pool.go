// Package workerpool bounds the number of blocking operations (store I/O,
// search calls) running at once and tracks detached background tasks.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultSize matches 16 workers per core on a two-core host
const DefaultSize = 32

// Pool runs functions with at most Size of them in flight
type Pool struct {
	sem    *semaphore.Weighted
	size   int64
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a pool. size <= 0 falls back to DefaultSize.
func New(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		logger: logger,
	}
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn on the calling goroutine once a slot is free. It returns
// ctx.Err() without running fn if ctx ends while waiting.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Submit runs fn in the background on a context detached from any request.
// Errors and panics are logged; Wait blocks until every submitted task is done.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()

		if err := p.Do(context.Background(), fn); err != nil {
			p.logger.Warn("Background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until all submitted tasks have returned
func (p *Pool) Wait() {
	p.wg.Wait()
}
