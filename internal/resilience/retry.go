package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry behavior with exponential backoff. No jitter is
// applied: the wait before retry k (k = 0, 1, 2, ...) is BaseDelay * 2^k.
type Policy struct {
	// Name identifies the wrapped operation in retry logs.
	Name string

	// MaxRetries is the number of retries after the first attempt, so fn runs
	// at most MaxRetries+1 times. Zero means a single attempt.
	MaxRetries int

	// BaseDelay is the wait before the first retry. Default: 1s.
	BaseDelay time.Duration

	// ShouldRetry optionally restricts which errors are retried. Default: Retryable.
	ShouldRetry func(err error) bool

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy used for provider and database calls.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:       name,
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Delay returns the backoff before retry k (zero-based).
func (p Policy) Delay(k int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	return base << uint(k)
}

// Retry runs fn, retrying failures per p, and returns the last error once
// retries are exhausted. Context cancellation stops retries immediately.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := RetryVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for functions that return a value.
func RetryVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = Retryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= p.MaxRetries || ctx.Err() != nil || !shouldRetry(err) {
			return zero, err
		}

		delay := p.Delay(attempt)
		zap.L().Warn("retrying operation",
			zap.String("operation", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
