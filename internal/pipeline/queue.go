package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/legalsift/legalsift/internal/job"
)

// ErrQueueFull is returned when the submission buffer has no room.
var ErrQueueFull = errors.New("analysis queue is full")

// ErrQueueClosed is returned for submissions after shutdown began.
var ErrQueueClosed = errors.New("analysis queue is closed")

type task struct {
	job  *job.Job
	done chan struct{}
}

// Queue is a bounded worker pool feeding jobs to the coordinator. Submission
// never blocks; a full buffer rejects immediately so the HTTP layer can tell
// the client to retry.
type Queue struct {
	coordinator *Coordinator
	logger      *slog.Logger

	workers int
	tasks   chan task

	mu      sync.Mutex
	handles map[string]chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// QueueOption customises queue construction.
type QueueOption func(*Queue)

// WithWorkers sets the number of concurrent pipeline workers.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBuffer sets the submission buffer size.
func WithBuffer(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.tasks = make(chan task, n)
		}
	}
}

func NewQueue(coordinator *Coordinator, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		coordinator: coordinator,
		logger:      logger,
		workers:     4,
		tasks:       make(chan task, 64),
		handles:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool. ctx cancellation stops workers after their
// current job.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.logger.Info("queue.started", "workers", q.workers, "buffer", cap(q.tasks))
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			q.logger.Debug("queue.dequeued", "worker", id, "job_id", t.job.ID)
			q.coordinator.Run(ctx, t.job)
			close(t.done)
			q.forget(t.job.ID)
		}
	}
}

// Submit enqueues a job for analysis.
func (q *Queue) Submit(j *job.Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	done := make(chan struct{})
	q.handles[j.ID] = done
	q.mu.Unlock()

	select {
	case q.tasks <- task{job: j, done: done}:
		return nil
	default:
		q.forget(j.ID)
		return ErrQueueFull
	}
}

// Wait blocks until the given job's pipeline run finishes, or returns
// immediately if the job is not in flight.
func (q *Queue) Wait(jobID string) {
	q.mu.Lock()
	done, ok := q.handles[jobID]
	q.mu.Unlock()
	if ok {
		<-done
	}
}

func (q *Queue) forget(jobID string) {
	q.mu.Lock()
	delete(q.handles, jobID)
	q.mu.Unlock()
}

// Shutdown stops intake and waits for in-flight work to drain.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.tasks)
	q.wg.Wait()
	q.logger.Info("queue.drained")
}
