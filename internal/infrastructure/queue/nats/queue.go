package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
)

// Queue is a JetStream work queue. Redelivery after NakWithDelay carries the
// retry backoff, and the delivery count becomes Job.Retries. Deferred jobs are
// republished after their delay so the delivery count is not spent.
type Queue struct {
	conn        *nats.Conn
	js          nats.JetStreamContext
	subject     string
	stream      string
	durable     string
	concurrency int
	ackWait     time.Duration
	fetchWait   time.Duration
	executor    *resilience.Executor
	logger      *slog.Logger

	deferred sync.WaitGroup
}

type Options struct {
	Stream               string
	Durable              string
	Concurrency          int
	AckWait              time.Duration
	FetchWait            time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("pdf-summarizer"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	q := &Queue{
		conn:        conn,
		js:          js,
		subject:     subject,
		stream:      defaultString(options.Stream, "DOCUMENTS"),
		durable:     defaultString(options.Durable, "summarizer-workers"),
		concurrency: options.Concurrency,
		ackWait:     options.AckWait,
		fetchWait:   options.FetchWait,
		executor:    options.ResilienceExecutor,
		logger:      logger,
	}
	if q.concurrency <= 0 {
		q.concurrency = 1
	}
	if q.ackWait <= 0 {
		q.ackWait = 11 * time.Minute
	}
	if q.fetchWait <= 0 {
		q.fetchWait = 2 * time.Second
	}

	if err := q.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStream() error {
	_, err := q.js.StreamInfo(q.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", q.stream, err)
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:      q.stream,
		Subjects:  []string{q.subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", q.stream, err)
	}
	return nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Enqueue(ctx context.Context, job domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	call := func(callCtx context.Context) error {
		if _, err := q.js.Publish(q.subject, payload, nats.Context(callCtx)); err != nil {
			return fmt.Errorf("jetstream publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Consume runs the configured number of pull loops until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, handler ports.JobHandler) error {
	sub, err := q.js.PullSubscribe(
		q.subject,
		q.durable,
		nats.BindStream(q.stream),
		nats.AckExplicit(),
		nats.AckWait(q.ackWait),
		nats.ManualAck(),
	)
	if err != nil {
		return fmt.Errorf("jetstream pull subscribe: %w", err)
	}

	var wg sync.WaitGroup
	for idx := 0; idx < q.concurrency; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.pullLoop(ctx, sub, handler)
		}()
	}
	wg.Wait()
	q.deferred.Wait()

	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func (q *Queue) pullLoop(ctx context.Context, sub *nats.Subscription, handler ports.JobHandler) {
	for ctx.Err() == nil {
		msgs, err := sub.Fetch(1, nats.MaxWait(q.fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			q.logger.Warn("nats_fetch_error", "error", err.Error())
			sleepCtx(ctx, q.fetchWait)
			continue
		}
		for _, msg := range msgs {
			q.deliver(ctx, msg, handler)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, msg *nats.Msg, handler ports.JobHandler) {
	job, err := decodeJob(msg)
	if err != nil {
		q.logger.Error("nats_bad_message", "error", err.Error())
		if termErr := msg.Term(); termErr != nil {
			q.logger.Warn("nats_term_failed", "error", termErr.Error())
		}
		return
	}

	outcome := handler(ctx, job)
	switch outcome.Action {
	case domain.OutcomeRetry:
		err = msg.NakWithDelay(outcome.Delay)
	case domain.OutcomeDefer:
		q.deferred.Add(1)
		go func() {
			defer q.deferred.Done()
			q.deferJob(ctx, msg, job, outcome.Delay)
		}()
		return
	default:
		err = msg.Ack()
	}
	if err != nil {
		q.logger.Warn("nats_settle_failed",
			"document_id", job.DocumentID,
			"action", outcome.Action.String(),
			"error", err.Error(),
		)
	}
}

// deferJob holds msg in progress for delay, then republishes job with its
// retry count intact and acks the original delivery. On shutdown the job is
// republished early.
func (q *Queue) deferJob(ctx context.Context, msg *nats.Msg, job domain.Job, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	heartbeat := time.NewTicker(heartbeatInterval(q.ackWait))
	defer heartbeat.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-timer.C:
			break wait
		case <-heartbeat.C:
			if err := msg.InProgress(); err != nil {
				q.logger.Warn("nats_in_progress_failed", "document_id", job.DocumentID, "error", err.Error())
			}
		}
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := q.Enqueue(publishCtx, deferredCopy(job)); err != nil {
		q.logger.Warn("nats_defer_republish_failed", "document_id", job.DocumentID, "error", err.Error())
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			q.logger.Warn("nats_settle_failed", "document_id", job.DocumentID, "action", "defer", "error", nakErr.Error())
		}
		return
	}
	if err := msg.Ack(); err != nil {
		q.logger.Warn("nats_settle_failed", "document_id", job.DocumentID, "action", "defer", "error", err.Error())
	}
}

func deferredCopy(job domain.Job) domain.Job {
	next := job
	next.StartedAt = time.Time{}
	return next
}

func heartbeatInterval(ackWait time.Duration) time.Duration {
	interval := ackWait / 2
	if interval <= 0 {
		interval = time.Second
	}
	return interval
}

func decodeJob(msg *nats.Msg) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		return domain.Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.DocumentID == "" {
		return domain.Job{}, errors.New("decode job: empty document_id")
	}
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
		if redeliveries := int(meta.NumDelivered) - 1; redeliveries > job.Retries {
			job.Retries = redeliveries
		}
	}
	return job, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
