// Package queue runs webhook jobs on a bounded pool of workers.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/internal/metrics"
)

// ErrFull is returned by Enqueue when no buffer slot is free.
var ErrFull = errors.New("queue is full")

// Handler handles a job.
type Handler func(context.Context, Job) error

// Job wraps a decoded webhook delivery.
type Job struct {
	Event webhook.RawEvent
}

// Queue runs jobs with worker goroutines.
type Queue struct {
	jobs    chan Job
	handler Handler
	wg      sync.WaitGroup
}

// New creates a new queue buffering four jobs per worker.
func New(workerCount int, handler Handler) *Queue {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Queue{
		jobs:    make(chan Job, workerCount*4),
		handler: handler,
	}
}

// Start launches workers. They exit when ctx is cancelled.
func (q *Queue) Start(ctx context.Context, workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					metrics.QueueDepth(len(q.jobs))
					if err := q.handler(ctx, job); err != nil {
						clog.ErrorContextf(ctx, "job %s (%s) failed: %v", job.Event.DeliveryID, job.Event.Name, err)
					}
				}
			}
		}()
	}
}

// Stop waits for workers to finish.
func (q *Queue) Stop() {
	q.wg.Wait()
}

// Enqueue adds a job to the queue without blocking.
func (q *Queue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		metrics.QueueDepth(len(q.jobs))
		return nil
	default:
		return ErrFull
	}
}
