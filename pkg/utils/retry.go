package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the randomization factor applied to each delay, in [0, 1].
	Jitter float64
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.5,
	}
}

// Policy produces a fresh backoff schedule for one operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc adapts an ordinary function to a Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff calls f().
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// NewBackOff returns an exponential schedule with jitter that stops after
// MaxAttempts total attempts. Zero durations and multipliers fall back to
// the defaults.
func (c RetryConfig) NewBackOff() backoff.BackOff {
	def := DefaultRetryConfig()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = def.InitialDelay
	}
	b.MaxInterval = c.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = def.MaxDelay
	}
	b.Multiplier = c.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	b.RandomizationFactor = c.Jitter
	if b.RandomizationFactor < 0 || b.RandomizationFactor > 1 {
		b.RandomizationFactor = def.Jitter
	}
	// attempts are bounded by count, never by wall clock
	b.MaxElapsedTime = 0
	b.Reset()

	retries := c.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// Notify is called after a failed attempt that will be retried.
type Notify func(err error, attempt int, delay time.Duration)

// Retry executes fn until it succeeds, returns an error retryable rejects, or
// the policy's schedule is exhausted. It reports the number of attempts made.
func Retry(ctx context.Context, policy Policy, retryable func(error) bool, fn func() error, notify Notify) (int, error) {
	_, attempts, err := RetryWithResult(ctx, policy, retryable, func() (struct{}, error) {
		return struct{}{}, fn()
	}, notify)
	return attempts, err
}

// RetryWithResult executes a function that returns a result under the given
// retry policy. Errors that retryable rejects are returned immediately.
// When ctx ends while waiting, ctx.Err() is returned.
func RetryWithResult[T any](ctx context.Context, policy Policy, retryable func(error) bool, fn func() (T, error), notify Notify) (T, int, error) {
	attempts := 0

	op := func() (T, error) {
		attempts++
		result, err := fn()
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, delay time.Duration) {
			notify(err, attempts, delay)
		}
	}

	result, err := backoff.RetryNotifyWithData(op, backoff.WithContext(policy.NewBackOff(), ctx), onRetry)
	return result, attempts, err
}
