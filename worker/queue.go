// Package worker runs jobs in order on a single background goroutine.
package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

var (
	// ErrQueueFull indicates the queue is at capacity, the job was dropped
	ErrQueueFull = errors.New("worker queue full")

	// ErrStopped indicates the queue does not accept jobs anymore
	ErrStopped = errors.New("worker queue stopped")

	// ErrStopTimeout indicates pending jobs did not finish in time
	ErrStopTimeout = errors.New("timeout waiting for worker queue to drain")
)

// Job is a unit of work.
type Job func()

// Queue is a bounded FIFO of jobs executed sequentially.
type Queue struct {
	logger log.Logger
	jobs   chan Job
	done   chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewQueue returns a queue holding up to size pending jobs.
func NewQueue(logger log.Logger, size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{
		logger: logger,
		jobs:   make(chan Job, size),
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine, calling it again is a no op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.run()
}

func (q *Queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.exec(job)
	}
}

func (q *Queue) exec(job Job) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(q.logger).Log("msg", "job panicked", "error", fmt.Sprint(r))
		}
	}()
	job()
}

// Submit enqueues job without blocking.
func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Stop refuses new jobs and waits up to timeout for pending ones to complete.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	started := q.started
	close(q.jobs)
	q.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}
