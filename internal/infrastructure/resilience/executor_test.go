package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func retryAll(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{Default: Policy{Retry: fastRetry(3)}})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "ollama.generate", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{Default: Policy{Retry: fastRetry(3)}})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "ollama.generate", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteUsesOperationFamilyOverride(t *testing.T) {
	exec := NewExecutor(Config{
		Default: Policy{Retry: fastRetry(5)},
		Overrides: map[string]Policy{
			"sendgrid": {Retry: fastRetry(2)},
		},
	})

	calls := map[string]int{}
	for _, op := range []string{"sendgrid.send", "gemini.generate"} {
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			calls[op]++
			return errors.New("503")
		}, retryAll)
	}
	if calls["sendgrid.send"] != 2 {
		t.Fatalf("expected sendgrid override of 2 attempts, got %d", calls["sendgrid.send"])
	}
	if calls["gemini.generate"] != 5 {
		t.Fatalf("expected default of 5 attempts, got %d", calls["gemini.generate"])
	}
}

func TestExecuteOpenCircuitIsTemporary(t *testing.T) {
	exec := NewExecutor(Config{Default: Policy{
		Retry: fastRetry(1),
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      2,
			FailureRatio:     0.5,
			OpenTimeout:      time.Minute,
			HalfOpenMaxCalls: 1,
		},
	}})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open circuit to surface as ErrTemporary, got %v", err)
	}
}

func TestExecuteNotifiesRetryObserver(t *testing.T) {
	var observed []int
	exec := NewExecutor(Config{Default: Policy{Retry: fastRetry(3)}}).
		WithRetryObserver(func(operation string, attempt int, err error) {
			if operation != "llm.complete" {
				t.Errorf("unexpected operation %q", operation)
			}
			observed = append(observed, attempt)
		})

	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "llm.complete", func(context.Context) error {
		return errTemp
	}, retryAll)
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected final temporary error, got %v", err)
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Fatalf("expected observer for attempts 1 and 2, got %v", observed)
	}
}

func TestExecuteStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	exec := NewExecutor(Config{Default: Policy{Retry: RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	}}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(ctx, "ollama.generate", func(context.Context) error {
		attempts++
		return errTemp
	}, retryAll)
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected last call error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", attempts)
	}
}

func TestSpreadKeepsWaitWithinJitterBounds(t *testing.T) {
	exec := NewExecutor(Config{})
	for _, sample := range []float64{0, 0.5, 0.999} {
		exec.jitter = func() float64 { return sample }
		got := exec.spread(time.Second, 0.2)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("sample %v: wait %v outside ±20%%", sample, got)
		}
	}
	if got := exec.spread(time.Second, 0); got != time.Second {
		t.Fatalf("expected no jitter, got %v", got)
	}
}

func TestDefaultConfigCoversPipelineDependencies(t *testing.T) {
	cfg := DefaultConfig()
	for _, family := range []string{"sendgrid", "nats"} {
		if _, ok := cfg.Overrides[family]; !ok {
			t.Fatalf("expected override for %s", family)
		}
	}
	if got := cfg.policyFor("ollama.generate"); got.Retry.MaxAttempts != cfg.Default.Retry.MaxAttempts {
		t.Fatalf("expected LLM calls to use the default policy, got %+v", got)
	}
}
