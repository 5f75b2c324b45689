package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (domain.Extraction, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open source document", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "read source document", err)
	}
	return ExtractBytes(ctx, raw)
}

// ExtractBytes parses a PDF and returns its normalized text with one
// "--- Page N ---" marker per page that yielded text.
func ExtractBytes(ctx context.Context, raw []byte) (result domain.Extraction, err error) {
	// The parser panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			result = domain.Extraction{}
			err = domain.WrapError(domain.ErrExtraction, "parse pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open pdf", fmt.Errorf("encrypted document: %w", err))
		}
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open pdf", err)
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open pdf", errors.New("document has no pages"))
	}

	blocks := make([]string, 0, pageCount)
	for num := 1; num <= pageCount; num++ {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}

		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, fmt.Sprintf("read page %d", num), err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("--- Page %d ---\n%s", num, text))
	}

	return domain.Extraction{
		Text:      Normalize(strings.Join(blocks, "\n\n")),
		PageCount: pageCount,
	}, nil
}
