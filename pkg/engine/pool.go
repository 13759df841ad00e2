package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Run after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of work run by a WorkerPool.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of goroutines. Run never returns
// before every worker it started has exited, so no goroutine outlives a call.
type WorkerPool struct {
	size int

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

// NewWorkerPool creates a pool with size workers. Sizes below one are raised to one.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{size: size}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Run executes every task and returns their errors by index. A failing task
// does not stop its siblings. A panicking task is reported as an error.
func (p *WorkerPool) Run(ctx context.Context, tasks []Task) ([]error, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.running.Add(1)
	p.mu.Unlock()
	defer p.running.Done()

	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs, nil
	}

	workerCount := p.size
	if len(tasks) < workerCount {
		workerCount = len(tasks)
	}

	queue := make(chan int, len(tasks))
	for i := range tasks {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				// Each task owns its slot; no locking needed.
				errs[idx] = runTask(ctx, tasks[idx])
			}
		}()
	}
	wg.Wait()

	return errs, nil
}

// Close rejects further Run calls and waits for the ones in flight.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.running.Wait()
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
