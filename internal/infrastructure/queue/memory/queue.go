package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

var ErrQueueFull = errors.New("memory queue is full")

// Queue is an in-process job queue for single-binary runs and tests.
// Delayed retries are re-enqueued by a timer with Retries incremented;
// deferred jobs come back after their delay with Retries unchanged.
type Queue struct {
	jobs        chan domain.Job
	concurrency int
	after       func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
	done    chan struct{}
}

func New(capacity, concurrency int) *Queue {
	if capacity <= 0 {
		capacity = 128
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Queue{
		jobs:        make(chan domain.Job, capacity),
		concurrency: concurrency,
		after:       time.AfterFunc,
		pending:     make(map[*time.Timer]struct{}),
		done:        make(chan struct{}),
	}
}

func (q *Queue) Enqueue(ctx context.Context, job domain.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "enqueue job", fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(q.jobs)))
	}
}

func (q *Queue) Consume(ctx context.Context, handler ports.JobHandler) error {
	var wg sync.WaitGroup
	for idx := 0; idx < q.concurrency; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					q.settle(job, handler(ctx, job))
				}
			}
		}()
	}
	wg.Wait()
	q.stopTimers()
	return nil
}

// Pending reports jobs waiting in the buffer, not counting scheduled retries.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) settle(job domain.Job, outcome domain.Outcome) {
	next := job
	switch outcome.Action {
	case domain.OutcomeRetry:
		next.Retries++
	case domain.OutcomeDefer:
	default:
		return
	}
	next.StartedAt = time.Time{}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var timer *time.Timer
	timer = q.after(outcome.Delay, func() {
		q.mu.Lock()
		delete(q.pending, timer)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		// Consumers may be gone by the time the buffer frees up.
		select {
		case q.jobs <- next:
		case <-q.done:
		}
	})
	q.pending[timer] = struct{}{}
}

func (q *Queue) stopTimers() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	for timer := range q.pending {
		timer.Stop()
	}
	q.pending = map[*time.Timer]struct{}{}
}
