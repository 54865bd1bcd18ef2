package forecast

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds how many CPU-heavy jobs (feature generation, model fitting) run at once.
// Callers block until their job finishes. Once started, a job is not cancelled.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool running at most size jobs concurrently
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// Do waits for a free slot, honouring ctx only while waiting, then runs fn
func (p *WorkerPool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
