package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxStoredExtractedText bounds the extracted text kept next to a summary.
const MaxStoredExtractedText = 50000

type Summary struct {
	ID             string        `json:"id"`
	DocumentID     string        `json:"document_id"`
	Content        string        `json:"content"`
	ExtractedText  string        `json:"extracted_text,omitempty"`
	WordCount      int           `json:"word_count"`
	ProcessingTime time.Duration `json:"processing_time"`
	EmailSent      bool          `json:"email_sent"`
	EmailSentAt    *time.Time    `json:"email_sent_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// TruncateRunes returns at most limit characters of text without splitting a rune.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	count := 0
	for idx := range text {
		if count == limit {
			return text[:idx]
		}
		count++
	}
	return text
}

// Prompt is a fully rendered LLM request with no conversation state.
type Prompt struct {
	System string
	User   string
}
