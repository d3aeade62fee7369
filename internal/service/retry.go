package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff applied to transient failures
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

type retrier struct {
	policy RetryPolicy
	logger *slog.Logger
}

func newRetrier(policy RetryPolicy, logger *slog.Logger) *retrier {
	return &retrier{policy: policy, logger: logger}
}

// do runs fn until it succeeds, fails permanently, or the retry budget is spent.
// Only transient errors are retried.
func (r *retrier) do(ctx context.Context, op string, fn func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.policy.InitialInterval
	expBackoff.MaxInterval = r.policy.MaxInterval
	expBackoff.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, r.policy.MaxRetries), ctx)

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Debug("retrying transient failure", "op", op, "wait", wait, "error", err)
	}

	return backoff.RetryNotify(operation, b, notify)
}

// retryValue is do for operations that return a value.
func retryValue[T any](ctx context.Context, r *retrier, op string, fn func() (T, error)) (T, error) {
	var out T
	err := r.do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
