package resilience

import (
	"strings"
	"time"
)

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter spreads each wait by up to ±Jitter of its length; 0 disables it.
	Jitter float64
}

type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Policy struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

// Config holds the fallback policy plus overrides keyed by operation family,
// the part of an operation name before the first dot ("sendgrid" for
// "sendgrid.send").
type Config struct {
	Default   Policy
	Overrides map[string]Policy
}

// DefaultConfig is tuned per outbound dependency of the pipeline. LLM calls
// take the default: a rate-limited completion usually clears within a couple
// of seconds, anything longer is left to job retry.
func DefaultConfig() Config {
	return Config{
		Default: Policy{
			Retry: RetryPolicy{
				MaxAttempts:    3,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     4 * time.Second,
				Multiplier:     2.0,
				Jitter:         0.1,
			},
			Breaker: BreakerPolicy{
				Enabled:          true,
				MinRequests:      8,
				FailureRatio:     0.5,
				OpenTimeout:      30 * time.Second,
				HalfOpenMaxCalls: 2,
			},
		},
		Overrides: map[string]Policy{
			"sendgrid": {
				Retry: RetryPolicy{
					MaxAttempts:    3,
					InitialBackoff: time.Second,
					MaxBackoff:     5 * time.Second,
					Multiplier:     2.0,
					Jitter:         0.2,
				},
				Breaker: BreakerPolicy{
					Enabled:          true,
					MinRequests:      4,
					FailureRatio:     0.5,
					OpenTimeout:      time.Minute,
					HalfOpenMaxCalls: 1,
				},
			},
			"nats": {
				Retry: RetryPolicy{
					MaxAttempts:    4,
					InitialBackoff: 100 * time.Millisecond,
					MaxBackoff:     time.Second,
					Multiplier:     2.0,
					Jitter:         0.2,
				},
				Breaker: BreakerPolicy{
					Enabled:          true,
					MinRequests:      10,
					FailureRatio:     0.5,
					OpenTimeout:      10 * time.Second,
					HalfOpenMaxCalls: 2,
				},
			},
		},
	}
}

func (c Config) policyFor(operation string) Policy {
	family, _, _ := strings.Cut(operation, ".")
	if policy, ok := c.Overrides[family]; ok {
		return policy.normalize()
	}
	return c.Default.normalize()
}

func (p Policy) normalize() Policy {
	def := DefaultConfig().Default
	out := p

	if out.Retry.MaxAttempts <= 0 {
		out.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if out.Retry.InitialBackoff <= 0 {
		out.Retry.InitialBackoff = def.Retry.InitialBackoff
	}
	if out.Retry.MaxBackoff <= 0 {
		out.Retry.MaxBackoff = def.Retry.MaxBackoff
	}
	if out.Retry.MaxBackoff < out.Retry.InitialBackoff {
		out.Retry.MaxBackoff = out.Retry.InitialBackoff
	}
	if out.Retry.Multiplier < 1.0 {
		out.Retry.Multiplier = def.Retry.Multiplier
	}
	if out.Retry.Jitter < 0 || out.Retry.Jitter >= 1 {
		out.Retry.Jitter = 0
	}

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenMaxCalls == 0 {
		out.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}
