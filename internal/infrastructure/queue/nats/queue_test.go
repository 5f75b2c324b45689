package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

func TestDecodeJob(t *testing.T) {
	msg := &nats.Msg{Data: []byte(`{"document_id":"doc-1","notify_target":"user@example.com","retries":0}`)}

	job, err := decodeJob(msg)
	if err != nil {
		t.Fatalf("decodeJob() error = %v", err)
	}
	if job.DocumentID != "doc-1" || job.NotifyTarget != "user@example.com" || job.Retries != 0 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestDecodeJobRejectsMalformedPayload(t *testing.T) {
	for _, payload := range []string{"doc-1", `{"notify_target":"x"}`} {
		if _, err := decodeJob(&nats.Msg{Data: []byte(payload)}); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestDeferredCopyKeepsRetryCount(t *testing.T) {
	job := domain.Job{DocumentID: "doc-1", Retries: 2, StartedAt: time.Now()}

	next := deferredCopy(job)
	if next.Retries != 2 || next.DocumentID != "doc-1" {
		t.Fatalf("unexpected deferred job: %+v", next)
	}
	if !next.StartedAt.IsZero() {
		t.Fatalf("expected started_at to be cleared, got %s", next.StartedAt)
	}
}

func TestHeartbeatIntervalStaysWithinAckWait(t *testing.T) {
	if got := heartbeatInterval(12 * time.Minute); got != 6*time.Minute {
		t.Fatalf("expected half of ack wait, got %s", got)
	}
	if got := heartbeatInterval(0); got <= 0 {
		t.Fatalf("expected positive interval, got %s", got)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(nats.ErrTimeout); !class.Retryable || !class.RecordFailure {
		t.Fatalf("timeout must be retryable: %+v", class)
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must not be retried or recorded: %+v", class)
	}
	if class := classifyNATSError(errors.New("bad subject")); class.Retryable {
		t.Fatalf("unknown errors are not retryable: %+v", class)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error for open circuit, got %v", err)
	}
	plain := errors.New("bad subject")
	if err := wrapTemporaryIfNeeded(plain); !errors.Is(err, plain) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected passthrough, got %v", err)
	}
}
