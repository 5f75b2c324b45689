package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 60 * time.Second
	DefaultLockTTL        = 11 * time.Minute
	DefaultLockBusyDelay  = 30 * time.Second

	markFailedTimeout = 10 * time.Second
)

type ProcessOptions struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	LockTTL        time.Duration
	// LockBusyDelay is how long a job waits before trying a locked document again.
	LockBusyDelay time.Duration
	// DashboardURL is linked from the notification when set.
	DashboardURL string
	Logger       *slog.Logger
	Now          func() time.Time
}

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.TextExtractor
	summarizer ports.DocumentSummarizer
	notifier   ports.Notifier
	locker     ports.DocumentLocker

	maxRetries     int
	retryBaseDelay time.Duration
	lockTTL        time.Duration
	lockBusyDelay  time.Duration
	dashboardURL   string
	logger         *slog.Logger
	now            func() time.Time
}

// NewProcessDocumentUseCase wires the pipeline. notifier and locker may be nil.
func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	summarizer ports.DocumentSummarizer,
	notifier ports.Notifier,
	locker ports.DocumentLocker,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.LockBusyDelay <= 0 {
		opts.LockBusyDelay = DefaultLockBusyDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ProcessDocumentUseCase{
		repo:           repo,
		extractor:      extractor,
		summarizer:     summarizer,
		notifier:       notifier,
		locker:         locker,
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
		lockTTL:        opts.LockTTL,
		lockBusyDelay:  opts.LockBusyDelay,
		dashboardURL:   strings.TrimRight(opts.DashboardURL, "/"),
		logger:         opts.Logger,
		now:            opts.Now,
	}
}

// RetryDelay grows linearly with the number of attempts already made.
func (uc *ProcessDocumentUseCase) RetryDelay(retries int) time.Duration {
	return uc.retryBaseDelay * time.Duration(retries+1)
}

func (uc *ProcessDocumentUseCase) Process(ctx context.Context, job domain.Job) domain.Outcome {
	if job.StartedAt.IsZero() {
		job.StartedAt = uc.now()
	}
	logger := uc.logger.With("document_id", job.DocumentID, "attempt", job.Retries+1)

	doc, err := uc.loadDocument(ctx, job.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			logger.Warn("document_not_found")
			return domain.Done(domain.ProcessResult{
				Status:     domain.ResultFailed,
				DocumentID: job.DocumentID,
				Error:      err.Error(),
			}, err)
		}
		return uc.handleFailure(ctx, logger, job, err)
	}
	if doc.Status == domain.StatusCompleted {
		logger.Info("document_already_completed")
		return domain.Done(domain.ProcessResult{Status: domain.ResultSkipped, DocumentID: doc.ID}, nil)
	}

	release, acquired, err := uc.acquire(ctx, doc.ID)
	if err != nil {
		return uc.handleFailure(ctx, logger, job, err)
	}
	if !acquired {
		// The holder may have crashed; the job has to come back after its lock expires.
		logger.Info("document_locked_elsewhere", "retry_in", uc.lockBusyDelay.String())
		return domain.Defer(uc.lockBusyDelay, domain.ProcessResult{Status: domain.ResultDeferred, DocumentID: doc.ID})
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("document_lock_release_failed", "error", err.Error())
		}
	}()

	summary, err := uc.runPipeline(ctx, job, doc)
	if err != nil {
		return uc.handleFailure(ctx, logger, job, err)
	}

	notified := uc.notify(ctx, logger, job, doc, summary)
	length := len([]rune(summary.Content))
	elapsed := summary.ProcessingTime
	return domain.Done(domain.ProcessResult{
		Status:         domain.ResultCompleted,
		DocumentID:     doc.ID,
		SummaryLength:  &length,
		ProcessingTime: &elapsed,
		Notified:       notified,
	}, nil)
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, job domain.Job, doc *domain.Document) (*domain.Summary, error) {
	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusUpdate{}); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	extraction, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	pages := extraction.PageCount
	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusUpdate{PageCount: &pages}); err != nil {
		return nil, fmt.Errorf("save page count: %w", err)
	}
	doc.PageCount = &pages
	if strings.TrimSpace(extraction.Text) == "" {
		return nil, domain.WrapError(domain.ErrEmptyContent, "extract text", errors.New("no text could be extracted from the PDF"))
	}

	content, err := uc.summarizer.Summarize(ctx, extraction.Text)
	if err != nil {
		return nil, fmt.Errorf("summarize text: %w", err)
	}

	now := uc.now()
	summary := &domain.Summary{
		ID:             uuid.NewString(),
		DocumentID:     doc.ID,
		Content:        content,
		ExtractedText:  domain.TruncateRunes(extraction.Text, domain.MaxStoredExtractedText),
		WordCount:      domain.CountWords(content),
		ProcessingTime: now.Sub(job.StartedAt),
		CreatedAt:      now,
	}
	if err := uc.repo.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	return summary, nil
}

func (uc *ProcessDocumentUseCase) handleFailure(ctx context.Context, logger *slog.Logger, job domain.Job, cause error) domain.Outcome {
	result := domain.ProcessResult{
		Status:     domain.ResultFailed,
		DocumentID: job.DocumentID,
		Error:      cause.Error(),
	}
	if err := uc.markFailed(ctx, job.DocumentID, cause); err != nil {
		logger.Error("mark_failed_error", "error", err.Error())
	}

	if domain.IsRetryable(cause) && job.Retries < uc.maxRetries {
		delay := uc.RetryDelay(job.Retries)
		logger.Warn("processing_failed_will_retry", "error", cause.Error(), "delay", delay.String())
		result.Status = domain.ResultRetrying
		return domain.Retry(delay, result, cause)
	}

	logger.Error("processing_failed", "error", cause.Error(), "retries", job.Retries)
	return domain.Done(result, cause)
}

// markFailed outlives the job deadline so an expired attempt is still recorded.
func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, cause error) error {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()
	return uc.repo.UpdateStatus(markCtx, documentID, domain.StatusFailed, domain.StatusUpdate{Error: cause.Error()})
}

func (uc *ProcessDocumentUseCase) notify(ctx context.Context, logger *slog.Logger, job domain.Job, doc *domain.Document, summary *domain.Summary) bool {
	if uc.notifier == nil || strings.TrimSpace(job.NotifyTarget) == "" {
		return false
	}

	subject := notificationSubject(doc)
	body := notificationBody(doc, summary, uc.dashboardURL)
	if err := uc.notifier.Notify(ctx, job.NotifyTarget, subject, body); err != nil {
		logger.Warn("notification_failed", "error", err.Error())
		return false
	}

	sentAt := uc.now()
	if err := uc.repo.MarkSummaryNotified(ctx, summary.ID, sentAt); err != nil {
		logger.Warn("mark_notified_failed", "error", err.Error())
	}
	summary.EmailSent = true
	summary.EmailSentAt = &sentAt
	return true
}

func notificationSubject(doc *domain.Document) string {
	return fmt.Sprintf("Your PDF Summary: %s", doc.Filename)
}

func notificationBody(doc *domain.Document, summary *domain.Summary, dashboardURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your PDF has been summarized!\n\nFile: %s\n", doc.Filename)
	if doc.PageCount != nil {
		fmt.Fprintf(&b, "Pages: %d\n", *doc.PageCount)
	}
	fmt.Fprintf(&b, "Summary length: %d words\n\n%s\n", summary.WordCount, summary.Content)
	if dashboardURL != "" {
		fmt.Fprintf(&b, "\nView all your summaries: %s/dashboard\n", dashboardURL)
	}
	return b.String()
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) acquire(ctx context.Context, documentID string) (func(context.Context) error, bool, error) {
	if uc.locker == nil {
		return func(context.Context) error { return nil }, true, nil
	}
	release, acquired, err := uc.locker.Acquire(ctx, documentID, uc.lockTTL)
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrTemporary, "acquire document lock", err)
	}
	return release, acquired, nil
}
