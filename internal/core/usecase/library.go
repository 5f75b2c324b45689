package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

type LibraryOptions struct {
	DashboardURL string
	Logger       *slog.Logger
	Now          func() time.Time
}

// LibraryUseCase serves the document and summary listings, deletion and
// manual re-delivery of a finished summary.
type LibraryUseCase struct {
	repo     ports.DocumentRepository
	catalog  ports.DocumentCatalog
	storage  ports.ObjectStorage
	notifier ports.Notifier

	dashboardURL string
	logger       *slog.Logger
	now          func() time.Time
}

// NewLibraryUseCase wires the library. notifier may be nil.
func NewLibraryUseCase(
	repo ports.DocumentRepository,
	catalog ports.DocumentCatalog,
	storage ports.ObjectStorage,
	notifier ports.Notifier,
	opts LibraryOptions,
) *LibraryUseCase {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &LibraryUseCase{
		repo:         repo,
		catalog:      catalog,
		storage:      storage,
		notifier:     notifier,
		dashboardURL: strings.TrimRight(opts.DashboardURL, "/"),
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

func (uc *LibraryUseCase) ListDocuments(ctx context.Context, page domain.Page) ([]domain.DocumentListItem, error) {
	return uc.catalog.ListDocuments(ctx, page.Normalize())
}

func (uc *LibraryUseCase) ListSummaries(ctx context.Context, page domain.Page) ([]domain.SummaryListItem, error) {
	return uc.catalog.ListSummaries(ctx, page.Normalize())
}

// DeleteDocument removes the row, its summary and then the stored file.
// A document that is being processed cannot be deleted.
func (uc *LibraryUseCase) DeleteDocument(ctx context.Context, id string) error {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusProcessing {
		return domain.WrapError(domain.ErrInvalidTransition, "delete document", fmt.Errorf("id=%s is processing", id))
	}
	if err := uc.catalog.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := uc.storage.Delete(context.WithoutCancel(ctx), doc.StoragePath); err != nil {
		uc.logger.Warn("stored_file_not_deleted", "document_id", id, "storage_key", doc.StoragePath, "error", err.Error())
	}
	uc.logger.Info("document_deleted", "document_id", id)
	return nil
}

// ResendSummary e-mails a completed document's summary to to and records the
// delivery. The notifier's error is returned unchanged in kind.
func (uc *LibraryUseCase) ResendSummary(ctx context.Context, documentID, to string) error {
	to = strings.TrimSpace(to)
	if _, err := mail.ParseAddress(to); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "resend summary", fmt.Errorf("invalid email address: %w", err))
	}
	if uc.notifier == nil {
		return domain.WrapError(domain.ErrNotificationDisabled, "resend summary", errors.New("no notifier configured"))
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status != domain.StatusCompleted {
		return domain.WrapError(domain.ErrInvalidTransition, "resend summary", fmt.Errorf("document is %s", doc.Status))
	}
	summary, err := uc.repo.GetSummaryByDocumentID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch summary: %w", err)
	}

	if err := uc.notifier.Notify(ctx, to, notificationSubject(doc), notificationBody(doc, summary, uc.dashboardURL)); err != nil {
		return fmt.Errorf("resend summary: %w", err)
	}
	if err := uc.repo.MarkSummaryNotified(context.WithoutCancel(ctx), summary.ID, uc.now()); err != nil {
		uc.logger.Warn("mark_notified_failed", "document_id", documentID, "error", err.Error())
	}
	uc.logger.Info("summary_resent", "document_id", documentID)
	return nil
}
