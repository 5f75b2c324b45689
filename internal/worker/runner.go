package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

const DefaultJobTimeout = 600 * time.Second

type Metrics interface {
	StartJob()
	FinishJob(status string, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
}

type Options struct {
	JobTimeout time.Duration
	Metrics    Metrics
	Logger     *slog.Logger
}

// Runner feeds queued jobs to the processor, one bounded attempt at a time.
type Runner struct {
	processor ports.DocumentProcessor
	queue     ports.JobQueue
	timeout   time.Duration
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewRunner(processor ports.DocumentProcessor, queue ports.JobQueue, opts Options) *Runner {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		processor: processor,
		queue:     queue,
		timeout:   opts.JobTimeout,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled or the queue stops.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("worker_started", "job_timeout", r.timeout.String())
	err := r.queue.Consume(ctx, r.Handle)
	r.logger.Info("worker_stopped")
	return err
}

func (r *Runner) Handle(ctx context.Context, job domain.Job) domain.Outcome {
	started := r.now()
	job.StartedAt = started
	if r.metrics != nil {
		if job.Retries == 0 && !job.EnqueuedAt.IsZero() {
			r.metrics.ObserveQueueLag(started.Sub(job.EnqueuedAt))
		}
		r.metrics.StartJob()
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	outcome := r.processor.Process(jobCtx, job)

	elapsed := r.now().Sub(started)
	if r.metrics != nil {
		r.metrics.FinishJob(string(outcome.Result.Status), elapsed)
	}
	r.logOutcome(job, outcome, elapsed)
	return outcome
}

func (r *Runner) logOutcome(job domain.Job, outcome domain.Outcome, elapsed time.Duration) {
	attrs := []any{
		"document_id", job.DocumentID,
		"attempt", job.Retries + 1,
		"status", string(outcome.Result.Status),
		"action", outcome.Action.String(),
		"duration_ms", elapsed.Milliseconds(),
		"notified", outcome.Result.Notified,
	}
	if outcome.Result.SummaryLength != nil {
		attrs = append(attrs, "summary_length", *outcome.Result.SummaryLength)
	}
	if outcome.Action == domain.OutcomeRetry || outcome.Action == domain.OutcomeDefer {
		attrs = append(attrs, "retry_in", outcome.Delay.String())
	}
	if outcome.Err != nil {
		attrs = append(attrs, "error", outcome.Err.Error())
	}

	switch outcome.Result.Status {
	case domain.ResultFailed:
		r.logger.Error("job_failed", attrs...)
	case domain.ResultRetrying:
		r.logger.Warn("job_retrying", attrs...)
	case domain.ResultSkipped:
		r.logger.Info("job_skipped", attrs...)
	case domain.ResultDeferred:
		r.logger.Info("job_deferred", attrs...)
	default:
		r.logger.Info("job_completed", attrs...)
	}
}
