package replay

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds how the caller-side policy re-attempts transient
// failures. Auth failures are never retried here; the orchestrator's single
// refresh cycle owns those.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     maxBackoff,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// ExecuteWithRetry wraps Execute with exponential backoff on transient
// failures. A server-suggested RetryAfter overrides the computed delay.
func (o *Orchestrator) ExecuteWithRetry(ctx context.Context, call Call, sess *Session, cfg RetryConfig) *StepResult {
	delay := cfg.InitialDelay
	var last *StepResult

	for attempt := 0; ; attempt++ {
		last = o.Execute(ctx, call, sess)
		if last.State != StateTransientFailure || attempt >= cfg.MaxRetries {
			return last
		}

		wait := delay
		if cfg.Jitter > 0 {
			j := cfg.Jitter * float64(delay)
			wait = time.Duration(float64(delay) + (rand.Float64()*2*j - j))
		}
		if last.RetryAfter > wait {
			wait = last.RetryAfter
		}

		select {
		case <-ctx.Done():
			return last
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
