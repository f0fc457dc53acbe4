package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fenixflow/ff-storage-sub000/internal/logger"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// RetryPolicy bounds exponential-backoff retries of transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy tries three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// NoRetry runs the operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	// attempts bound the retry, not elapsed time
	b.MaxElapsedTime = 0

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts run out. Exhausting the attempts on a connectivity
// failure yields ConnectionPoolExhausted wrapping the last error; other
// retryable failures are returned as they are.
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !storeerr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Get().Debug("Retrying after transient failure",
			"op", op, "attempt", attempts, "next", next, "error", err)
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if !storeerr.IsRetryable(err) || attempts < max(p.MaxAttempts, 1) {
		return err
	}

	switch storeerr.KindOf(err) {
	case storeerr.KindConnection, storeerr.KindQueryTimeout:
		return &storeerr.Error{
			Kind:    storeerr.KindConnectionPoolExhausted,
			Op:      op,
			Message: "retries exhausted",
			Err:     err,
		}
	}
	return err
}
