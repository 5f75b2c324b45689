package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload + enqueue.
type DocumentIngestor interface {
	Upload(ctx context.Context, upload domain.Upload, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document state and results.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetSummaryByDocumentID(ctx context.Context, documentID string) (*domain.Summary, error)
}

// DocumentLibrary is the inbound contract for browsing, deleting and
// re-sending finished work.
type DocumentLibrary interface {
	ListDocuments(ctx context.Context, page domain.Page) ([]domain.DocumentListItem, error)
	ListSummaries(ctx context.Context, page domain.Page) ([]domain.SummaryListItem, error)
	DeleteDocument(ctx context.Context, id string) error
	ResendSummary(ctx context.Context, documentID, to string) error
}

// DocumentProcessor runs one job attempt through the pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, job domain.Job) domain.Outcome
}
