package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Save(context.Background(), "doc-1_report.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := storage.Open(context.Background(), "doc-1_report.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	storage, _ := New(dir)
	if err := storage.Save(context.Background(), "a.pdf", strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.pdf" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestRejectsKeysEscapingBasePath(t *testing.T) {
	dir := t.TempDir()
	storage, _ := New(filepath.Join(dir, "uploads"))
	for _, key := range []string{"../outside.pdf", "/etc/passwd", ""} {
		err := storage.Save(context.Background(), key, strings.NewReader("x"))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}

func TestOpenMissingFileIsNotFound(t *testing.T) {
	storage, _ := New(t.TempDir())
	if _, err := storage.Open(context.Background(), "missing.pdf"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	storage, _ := New(dir)
	if err := storage.Save(context.Background(), "a.pdf", strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := storage.Delete(context.Background(), "a.pdf"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "a.pdf")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be gone, stat err = %v", err)
	}
}
