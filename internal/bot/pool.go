package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool runs jobs on a fixed number of worker goroutines.
//
// Long polling delivers updates one at a time; a slow background removal
// must not hold up every other chat. Submit blocks while all workers are
// busy, so a burst of updates backs up into Telegram's queue instead of
// piling up in memory.
type Pool[T any] struct {
	handle    func(context.Context, T)
	size      int
	logger    *slog.Logger
	jobs      chan T
	wg        sync.WaitGroup
	startDone sync.Once
	stopDone  sync.Once
}

// NewPool creates a pool of size workers that call handle for every job.
func NewPool[T any](size int, handle func(context.Context, T), logger *slog.Logger) *Pool[T] {
	if size < 1 {
		size = 1
	}
	return &Pool[T]{
		handle: handle,
		size:   size,
		logger: logger,
		jobs:   make(chan T),
	}
}

// Start launches the workers. ctx is handed to every job; cancelling it does
// not stop the workers, Stop does.
func (p *Pool[T]) Start(ctx context.Context) {
	p.startDone.Do(func() {
		p.logger.Info("starting update worker pool", slog.Int("workers", p.size))
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
	})
}

// Submit hands job to a free worker. It blocks until one is available or
// ctx is cancelled.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop lets in-flight jobs finish and waits for the workers to exit.
// Submit must not be called after Stop.
func (p *Pool[T]) Stop() {
	p.stopDone.Do(func() {
		p.logger.Info("shutting down update worker pool")
		close(p.jobs)
		p.wg.Wait()
	})
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(ctx, job)
	}
}

// run isolates one job so a panic in a handler costs that update only.
func (p *Pool[T]) run(ctx context.Context, job T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("update handler panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	p.handle(ctx, job)
}
