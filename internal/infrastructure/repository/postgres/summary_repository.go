package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

// CreateSummary inserts the summary and completes its document in one
// transaction, so a summary exists exactly when the document is completed.
func (r *DocumentRepository) CreateSummary(ctx context.Context, summary *domain.Summary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := lockForTransition(ctx, tx, summary.DocumentID, domain.StatusCompleted); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO summaries (
	id, document_id, content, extracted_text, word_count, processing_time_seconds, email_sent, email_sent_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		summary.ID, summary.DocumentID, summary.Content, nullableString(summary.ExtractedText), summary.WordCount,
		summary.ProcessingTime.Seconds(), summary.EmailSent, summary.EmailSentAt, summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = NULL, updated_at = $3
WHERE id = $1
`, summary.DocumentID, string(domain.StatusCompleted), r.now())
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetSummaryByDocumentID(ctx context.Context, documentID string) (*domain.Summary, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, content, extracted_text, word_count, processing_time_seconds, email_sent, email_sent_at, created_at
FROM summaries
WHERE document_id = $1
`, documentID)

	var summary domain.Summary
	var extracted sql.NullString
	var seconds float64
	var sentAt sql.NullTime

	err := row.Scan(
		&summary.ID, &summary.DocumentID, &summary.Content, &extracted, &summary.WordCount,
		&seconds, &summary.EmailSent, &sentAt, &summary.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSummaryNotFound, "get summary", fmt.Errorf("document_id=%s", documentID))
		}
		return nil, fmt.Errorf("scan summary: %w", err)
	}

	summary.ExtractedText = extracted.String
	summary.ProcessingTime = time.Duration(seconds * float64(time.Second))
	if sentAt.Valid {
		at := sentAt.Time
		summary.EmailSentAt = &at
	}
	return &summary, nil
}

func (r *DocumentRepository) MarkSummaryNotified(ctx context.Context, summaryID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE summaries
SET email_sent = TRUE, email_sent_at = $2
WHERE id = $1
`, summaryID, at)
	if err != nil {
		return fmt.Errorf("mark summary notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark summary notified rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrSummaryNotFound, "mark summary notified", fmt.Errorf("id=%s", summaryID))
	}
	return nil
}
