package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrSummaryNotFound      = errors.New("summary not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTemporary            = errors.New("temporary failure")
	ErrExtraction           = errors.New("text extraction failed")
	ErrEmptyContent         = errors.New("no text could be extracted")
	ErrSummarization        = errors.New("summarization failed")
	ErrNotification         = errors.New("notification failed")
	ErrNotificationDisabled = errors.New("notification disabled")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRetryable reports whether a pipeline failure should be rescheduled.
// Empty content is retried like any extraction failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case IsKind(err, ErrDocumentNotFound), IsKind(err, ErrInvalidInput), IsKind(err, ErrInvalidTransition):
		return false
	default:
		return true
	}
}
