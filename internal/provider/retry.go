package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
)

// RetryPolicy is an explicit, injectable retry parameter: exponential
// backoff from BaseDelay with +/-Jitter fractional randomization.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, Jitter: 0.2}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if p.Jitter > 0 {
		f := 1 + p.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	return d
}

// Do runs fn under the policy. Only transient errors are retried; a
// permanent error returns immediately. When attempts are exhausted the
// last error is wrapped in domain.ErrProviderUnavailable so callers never
// loop forever on a dead provider.
func Do[T any](ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	log := logging.FromContext(ctx)

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := policy.delay(attempt - 1)
			log.Warn("retrying provider call",
				"op", op,
				"attempt", attempt+1,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%s: %d attempts exhausted: %v: %w",
		op, attempts, lastErr, domain.ErrProviderUnavailable)
}
