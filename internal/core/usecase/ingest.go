package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

const DefaultMaxFileSize int64 = 10 << 20

type IngestDocumentUseCase struct {
	repo        ports.DocumentRepository
	storage     ports.ObjectStorage
	queue       ports.JobQueue
	maxFileSize int64
	now         func() time.Time
	logger      *slog.Logger
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	maxFileSize int64,
) *IngestDocumentUseCase {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &IngestDocumentUseCase{
		repo:        repo,
		storage:     storage,
		queue:       queue,
		maxFileSize: maxFileSize,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
}

func (uc *IngestDocumentUseCase) Upload(ctx context.Context, upload domain.Upload, body io.Reader) (*domain.Document, error) {
	if err := uc.validate(upload); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(upload.Filename))
	now := uc.now()

	if err := uc.storage.Save(ctx, storageKey, io.LimitReader(body, uc.maxFileSize)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filepath.Base(upload.Filename),
		StoragePath: storageKey,
		FileSize:    upload.Size,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), storageKey); delErr != nil {
			uc.logger.Warn("orphaned_upload", "storage_key", storageKey, "error", delErr.Error())
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	job := domain.Job{
		DocumentID:   doc.ID,
		NotifyTarget: strings.TrimSpace(upload.NotifyTarget),
		EnqueuedAt:   now,
	}
	if err := uc.queue.Enqueue(ctx, job); err != nil {
		// Nothing will pick the document up, so it must not stay pending.
		update := domain.StatusUpdate{Error: "enqueue processing job: " + err.Error()}
		if markErr := uc.repo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed, update); markErr != nil {
			uc.logger.Warn("unqueued_document_not_marked", "document_id", doc.ID, "error", markErr.Error())
		}
		return nil, fmt.Errorf("enqueue processing job: %w", err)
	}

	return doc, nil
}

func (uc *IngestDocumentUseCase) validate(upload domain.Upload) error {
	isPDF := strings.EqualFold(filepath.Ext(upload.Filename), ".pdf")
	if upload.MimeType != "" && upload.MimeType != "application/octet-stream" {
		isPDF = isPDF && strings.HasPrefix(upload.MimeType, "application/pdf")
	}
	if !isPDF {
		return fmt.Errorf("only PDF files are supported, got %q", upload.Filename)
	}
	if upload.Size <= 0 {
		return errors.New("file is empty")
	}
	if upload.Size > uc.maxFileSize {
		return fmt.Errorf("file exceeds %d bytes", uc.maxFileSize)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(upload.NotifyTarget)); err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.pdf"
	}
	return base
}
