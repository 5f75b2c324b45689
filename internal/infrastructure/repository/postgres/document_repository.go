package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, storage_path, file_size, page_count, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.Filename, doc.StoragePath, doc.FileSize, nullableInt(doc.PageCount),
		string(doc.Status), nullableString(doc.Error), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, file_size, page_count, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var pageCount sql.NullInt64
	var errMessage sql.NullString
	var status string

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.StoragePath, &doc.FileSize, &pageCount,
		&status, &errMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if pageCount.Valid {
		pages := int(pageCount.Int64)
		doc.PageCount = &pages
	}
	doc.Error = errMessage.String
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

// UpdateStatus applies a lifecycle transition under a row lock and rejects
// moves the status machine does not allow.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, update domain.StatusUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := lockForTransition(ctx, tx, id, status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, page_count = COALESCE($4, page_count), updated_at = $5
WHERE id = $1
`, id, string(status), nullableString(update.Error), nullableInt(update.PageCount), r.now())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status tx: %w", err)
	}
	return nil
}

func lockForTransition(ctx context.Context, tx *sql.Tx, id string, next domain.DocumentStatus) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, "lock document", fmt.Errorf("id=%s", id))
		}
		return fmt.Errorf("lock document: %w", err)
	}
	if !domain.DocumentStatus(current).CanTransitionTo(next) {
		return domain.WrapError(domain.ErrInvalidTransition, "lock document", fmt.Errorf("id=%s %s -> %s", id, current, next))
	}
	return nil
}
