package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

func (r *DocumentRepository) ListDocuments(ctx context.Context, page domain.Page) ([]domain.DocumentListItem, error) {
	page = page.Normalize()
	rows, err := r.db.QueryContext(ctx, `
SELECT d.id, d.filename, d.storage_path, d.file_size, d.page_count, d.status, d.error_message,
	d.created_at, d.updated_at, s.id IS NOT NULL
FROM documents d
LEFT JOIN summaries s ON s.document_id = d.id
ORDER BY d.created_at DESC
LIMIT $1 OFFSET $2
`, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]domain.DocumentListItem, 0, page.Limit)
	for rows.Next() {
		var item domain.DocumentListItem
		var pageCount sql.NullInt64
		var errMessage sql.NullString
		var status string
		if err := rows.Scan(
			&item.ID, &item.Filename, &item.StoragePath, &item.FileSize, &pageCount,
			&status, &errMessage, &item.CreatedAt, &item.UpdatedAt, &item.HasSummary,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		if pageCount.Valid {
			pages := int(pageCount.Int64)
			item.PageCount = &pages
		}
		item.Error = errMessage.String
		item.Status = domain.DocumentStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// ListSummaries leaves ExtractedText empty; it is only served per document.
func (r *DocumentRepository) ListSummaries(ctx context.Context, page domain.Page) ([]domain.SummaryListItem, error) {
	page = page.Normalize()
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.document_id, s.content, s.word_count, s.processing_time_seconds,
	s.email_sent, s.email_sent_at, s.created_at, d.filename
FROM summaries s
JOIN documents d ON d.id = s.document_id
ORDER BY s.created_at DESC
LIMIT $1 OFFSET $2
`, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SummaryListItem, 0, page.Limit)
	for rows.Next() {
		var item domain.SummaryListItem
		var seconds float64
		var sentAt sql.NullTime
		if err := rows.Scan(
			&item.ID, &item.DocumentID, &item.Content, &item.WordCount, &seconds,
			&item.EmailSent, &sentAt, &item.CreatedAt, &item.Filename,
		); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		item.ProcessingTime = time.Duration(seconds * float64(time.Second))
		if sentAt.Valid {
			at := sentAt.Time
			item.EmailSentAt = &at
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return items, nil
}

// DeleteDocument relies on ON DELETE CASCADE to drop the summary.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	return nil
}
