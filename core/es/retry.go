package es

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type retryOptions struct {
	maxTries   uint
	maxElapsed time.Duration
	initial    time.Duration
	notify     func(error, time.Duration)
}

// RetryOption configures RetryOnConflict.
type RetryOption func(*retryOptions)

func RetryMaxTries(n uint) RetryOption { return func(o *retryOptions) { o.maxTries = n } }

func RetryMaxElapsed(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.maxElapsed = d }
}

func RetryInitialInterval(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.initial = d }
}

func RetryNotify(fn func(error, time.Duration)) RetryOption {
	return func(o *retryOptions) { o.notify = fn }
}

// RetryOnConflict calls fn until it succeeds or fails with anything other
// than ErrConcurrencyConflict. fn is expected to re-read the stream on every
// attempt, typically by rebuilding its command from fresh state.
func RetryOnConflict[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	options := retryOptions{maxTries: 5, maxElapsed: 10 * time.Second, initial: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&options)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = options.initial
	b.MaxInterval = time.Second

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(options.maxTries),
		backoff.WithMaxElapsedTime(options.maxElapsed),
	}
	if options.notify != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(options.notify))
	}

	return backoff.Retry(ctx, func() (T, error) {
		out, err := fn(ctx)
		if err != nil && !errors.Is(err, ErrConcurrencyConflict) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, retryOpts...)
}
