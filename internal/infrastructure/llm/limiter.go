package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

// RateLimited throttles completions shared by every job of a worker process.
type RateLimited struct {
	next    ports.LLMClient
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket; rps <= 0 disables limiting.
func NewRateLimited(next ports.LLMClient, rps float64, burst int) ports.LLMClient {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Complete(ctx context.Context, prompt domain.Prompt) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit wait: %w", err)
	}
	return r.next.Complete(ctx, prompt)
}
