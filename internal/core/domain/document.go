package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// CanTransitionTo reports whether a document may move from s to next.
// Failed documents re-enter processing only when a retry picks them up again.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing || next == StatusFailed
	default:
		return false
	}
}

func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path"`
	FileSize    int64          `json:"file_size"`
	PageCount   *int           `json:"page_count,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StatusUpdate carries the optional fields persisted together with a status change.
type StatusUpdate struct {
	PageCount *int
	Error     string
}

type Extraction struct {
	Text      string
	PageCount int
}

// Chunk is a contiguous slice of the source text: Text == source[Start:End].
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Upload describes an incoming file before it is stored.
type Upload struct {
	Filename     string
	MimeType     string
	Size         int64
	NotifyTarget string
}

// DocumentListItem is a document row plus whether its summary exists.
type DocumentListItem struct {
	Document
	HasSummary bool `json:"has_summary"`
}

// SummaryListItem is a summary row with its document's filename.
type SummaryListItem struct {
	Summary
	Filename string `json:"filename"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page selects a window of a newest-first listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
