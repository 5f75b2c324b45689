package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/queue/memory"
)

type processorFake struct {
	outcome  domain.Outcome
	deadline time.Time
	jobs     []domain.Job
	wait     bool
}

func (f *processorFake) Process(ctx context.Context, job domain.Job) domain.Outcome {
	f.jobs = append(f.jobs, job)
	f.deadline, _ = ctx.Deadline()
	if f.wait {
		<-ctx.Done()
		return domain.Retry(time.Minute, domain.ProcessResult{Status: domain.ResultRetrying}, ctx.Err())
	}
	return f.outcome
}

type metricsFake struct {
	started  int
	statuses []string
	lags     []time.Duration
}

func (f *metricsFake) StartJob() { f.started++ }

func (f *metricsFake) FinishJob(status string, _ time.Duration) {
	f.statuses = append(f.statuses, status)
}

func (f *metricsFake) ObserveQueueLag(lag time.Duration) { f.lags = append(f.lags, lag) }

type queueFake struct{}

func (queueFake) Enqueue(context.Context, domain.Job) error { return nil }

func (queueFake) Consume(context.Context, ports.JobHandler) error { return errors.New("not implemented") }

func TestHandleAppliesTimeoutAndRecordsMetrics(t *testing.T) {
	processor := &processorFake{outcome: domain.Done(domain.ProcessResult{Status: domain.ResultCompleted}, nil)}
	metrics := &metricsFake{}
	runner := NewRunner(processor, queueFake{}, Options{JobTimeout: time.Minute, Metrics: metrics})

	before := time.Now()
	outcome := runner.Handle(context.Background(), domain.Job{DocumentID: "doc-1", EnqueuedAt: time.Now().Add(-time.Second)})

	if outcome.Result.Status != domain.ResultCompleted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if processor.deadline.IsZero() || processor.deadline.Sub(before) > time.Minute+time.Second {
		t.Fatalf("expected a one minute deadline, got %v", processor.deadline)
	}
	if processor.jobs[0].StartedAt.IsZero() {
		t.Fatalf("expected StartedAt to be stamped")
	}
	if metrics.started != 1 || len(metrics.statuses) != 1 || metrics.statuses[0] != "completed" {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if len(metrics.lags) != 1 || metrics.lags[0] < time.Second {
		t.Fatalf("expected queue lag >= 1s, got %v", metrics.lags)
	}
}

func TestHandleSkipsQueueLagForRetries(t *testing.T) {
	processor := &processorFake{outcome: domain.Done(domain.ProcessResult{Status: domain.ResultFailed}, errors.New("boom"))}
	metrics := &metricsFake{}
	runner := NewRunner(processor, queueFake{}, Options{Metrics: metrics})

	runner.Handle(context.Background(), domain.Job{DocumentID: "doc-1", Retries: 2, EnqueuedAt: time.Now().Add(-time.Hour)})
	if len(metrics.lags) != 0 {
		t.Fatalf("retried jobs must not report queue lag: %v", metrics.lags)
	}
}

func TestHandlePassesDeferralThrough(t *testing.T) {
	processor := &processorFake{outcome: domain.Defer(30*time.Second, domain.ProcessResult{Status: domain.ResultDeferred, DocumentID: "doc-1"})}
	metrics := &metricsFake{}
	runner := NewRunner(processor, queueFake{}, Options{Metrics: metrics})

	outcome := runner.Handle(context.Background(), domain.Job{DocumentID: "doc-1", Retries: 1})
	if outcome.Action != domain.OutcomeDefer || outcome.Delay != 30*time.Second {
		t.Fatalf("expected deferral to reach the queue, got %+v", outcome)
	}
	if len(metrics.statuses) != 1 || metrics.statuses[0] != "deferred" {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestHandleTimesOutLongJobs(t *testing.T) {
	processor := &processorFake{wait: true}
	runner := NewRunner(processor, queueFake{}, Options{JobTimeout: 20 * time.Millisecond})

	outcome := runner.Handle(context.Background(), domain.Job{DocumentID: "doc-1"})
	if outcome.Action != domain.OutcomeRetry || !errors.Is(outcome.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline retry, got %+v", outcome)
	}
}

func TestRunConsumesFromQueue(t *testing.T) {
	queue := memory.New(4, 1)
	done := make(chan struct{})
	processor := &processorFake{outcome: domain.Done(domain.ProcessResult{Status: domain.ResultCompleted}, nil)}
	runner := NewRunner(processorFunc(func(ctx context.Context, job domain.Job) domain.Outcome {
		defer close(done)
		return processor.Process(ctx, job)
	}), queue, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	if err := queue.Enqueue(context.Background(), domain.Job{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not processed")
	}
}

type processorFunc func(context.Context, domain.Job) domain.Outcome

func (f processorFunc) Process(ctx context.Context, job domain.Job) domain.Outcome { return f(ctx, job) }
