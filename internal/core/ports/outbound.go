package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

// DocumentRepository persists document state and summaries.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, update domain.StatusUpdate) error
	// CreateSummary stores the summary and marks its document completed atomically.
	CreateSummary(ctx context.Context, summary *domain.Summary) error
	GetSummaryByDocumentID(ctx context.Context, documentID string) (*domain.Summary, error)
	MarkSummaryNotified(ctx context.Context, summaryID string, at time.Time) error
}

// DocumentCatalog lists and removes documents for the library views.
type DocumentCatalog interface {
	ListDocuments(ctx context.Context, page domain.Page) ([]domain.DocumentListItem, error)
	ListSummaries(ctx context.Context, page domain.Page) ([]domain.SummaryListItem, error)
	// DeleteDocument removes the document row together with its summary.
	DeleteDocument(ctx context.Context, id string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// JobHandler processes one delivered job and tells the queue what to do with it.
type JobHandler func(ctx context.Context, job domain.Job) domain.Outcome

// JobQueue publishes and consumes processing jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.Job) error
	Consume(ctx context.Context, handler JobHandler) error
}

// TextExtractor extracts normalized plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (domain.Extraction, error)
}

// Chunker splits text into bounded, overlapping chunks.
type Chunker interface {
	Split(text string) []domain.Chunk
}

// LLMClient completes a single stateless prompt.
type LLMClient interface {
	Complete(ctx context.Context, prompt domain.Prompt) (string, error)
}

// DocumentSummarizer turns extracted text into a summary.
type DocumentSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Notifier delivers a message to a user; nil error means delivered.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) error
}

// DocumentLocker guards a document against concurrent processing.
type DocumentLocker interface {
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
