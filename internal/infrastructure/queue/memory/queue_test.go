package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

func TestConsumeDeliversEnqueuedJobs(t *testing.T) {
	q := New(4, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, job domain.Job) domain.Outcome {
			mu.Lock()
			seen[job.DocumentID] = true
			if len(seen) == 2 {
				close(done)
			}
			mu.Unlock()
			return domain.Done(domain.ProcessResult{Status: domain.ResultCompleted}, nil)
		})
	}()

	for _, id := range []string{"doc-1", "doc-2"} {
		if err := q.Enqueue(context.Background(), domain.Job{DocumentID: id}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("jobs were not consumed")
	}
}

func TestRetryRedeliversWithIncrementedRetries(t *testing.T) {
	q := New(4, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 4)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, job domain.Job) domain.Outcome {
			attempts <- job.Retries
			if job.Retries < 2 {
				return domain.Retry(time.Millisecond, domain.ProcessResult{Status: domain.ResultRetrying}, nil)
			}
			return domain.Done(domain.ProcessResult{Status: domain.ResultFailed}, nil)
		})
	}()

	if err := q.Enqueue(context.Background(), domain.Job{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	for want := 0; want <= 2; want++ {
		select {
		case got := <-attempts:
			if got != want {
				t.Fatalf("expected retries=%d, got %d", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d was not delivered", want)
		}
	}
	select {
	case extra := <-attempts:
		t.Fatalf("unexpected extra delivery with retries=%d", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEnqueueReportsFullQueueAsTemporary(t *testing.T) {
	q := New(1, 1)
	if err := q.Enqueue(context.Background(), domain.Job{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	err := q.Enqueue(context.Background(), domain.Job{DocumentID: "doc-2"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if q.Pending() != 1 {
		t.Fatalf("expected one pending job, got %d", q.Pending())
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	q := New(1, 3)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() {
		finished <- q.Consume(ctx, func(context.Context, domain.Job) domain.Outcome {
			return domain.Done(domain.ProcessResult{}, nil)
		})
	}()
	cancel()

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Consume did not stop")
	}
}

func TestDeferRedeliversWithoutSpendingRetries(t *testing.T) {
	q := New(4, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 4)
	var calls int
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, job domain.Job) domain.Outcome {
			calls++
			attempts <- job.Retries
			if calls < 3 {
				return domain.Defer(time.Millisecond, domain.ProcessResult{Status: domain.ResultDeferred})
			}
			return domain.Done(domain.ProcessResult{Status: domain.ResultCompleted}, nil)
		})
	}()

	if err := q.Enqueue(context.Background(), domain.Job{DocumentID: "doc-1", Retries: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case got := <-attempts:
			if got != 1 {
				t.Fatalf("delivery %d: expected retries to stay 1, got %d", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d did not arrive", i)
		}
	}
}

func TestScheduledRedeliveryDoesNotBlockAfterShutdown(t *testing.T) {
	q := New(1, 1)
	var fire func()
	q.after = func(_ time.Duration, fn func()) *time.Timer {
		fire = fn
		return time.NewTimer(time.Hour)
	}

	q.settle(domain.Job{DocumentID: "doc-1"}, domain.Retry(time.Second, domain.ProcessResult{}, nil))
	if fire == nil {
		t.Fatalf("expected a scheduled redelivery")
	}
	if err := q.Enqueue(context.Background(), domain.Job{DocumentID: "doc-2"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	returned := make(chan struct{})
	go func() {
		fire()
		close(returned)
	}()
	q.stopTimers()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer callback stayed blocked on a full buffer after shutdown")
	}
	if q.Pending() != 1 {
		t.Fatalf("expected only the original job buffered, got %d", q.Pending())
	}
}
