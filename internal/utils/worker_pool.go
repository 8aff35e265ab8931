package utils

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Job represents a task to be executed by a worker.
type Job struct {
	ctx    context.Context
	task   Task
	result chan error
}

// WorkerPool manages a bounded pool of workers. Every submitted task gets its
// own result channel which receives exactly one value and is then closed.
type WorkerPool struct {
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a new WorkerPool with the specified number of workers
// and queue capacity.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		job.result <- CatchPanic(func() error {
			return job.task(job.ctx)
		})
		close(job.result)
	}
}

// Submit queues task, blocking while the queue is full. The returned channel
// yields the task's error (nil on success).
func (wp *WorkerPool) Submit(ctx context.Context, task Task) (<-chan error, error) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return nil, ErrPoolClosed
	}

	job := Job{ctx: ctx, task: task, result: make(chan error, 1)}
	select {
	case wp.jobQueue <- job:
		return job.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.waitGroup.Wait()
}

// Workers returns the number of workers.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}
