// Package retryutil wraps github.com/cenkalti/backoff/v5 into the single
// reusable retry policy value described by the ingestion workflow's
// resumability requirements: every external call (git clone, embedding
// request, vector store write, LLM call) retries under the same
// exponential-backoff shape rather than hand-rolling its own loop.
package retryutil

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"code-doc-assistant/internal/config"
)

// Permanent wraps an error to signal that it must not be retried (e.g. a
// validation error or a 4xx response), mirroring backoff.Permanent so
// callers don't need to import the backoff package directly.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn under the retry policy derived from cfg, logging each retry
// attempt at debug level. It stops retrying once the policy's budget is
// exhausted, the context is cancelled, or fn returns a Permanent error.
func Do[T any](ctx context.Context, policy config.RetryPolicy, logger zerolog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil {
			var permErr *backoff.PermanentError
			if errors.As(err, &permErr) {
				logger.Debug().Str("op", op).Int("attempt", attempt).Err(err).Msg("retry: permanent failure")
			} else {
				logger.Debug().Str("op", op).Int("attempt", attempt).Err(err).Msg("retry: transient failure, will retry")
			}
		}
		return v, err
	}

	result, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewExponentialBackOff(func(b *backoff.ExponentialBackOff) {
			b.InitialInterval = policy.Initial
			b.Multiplier = policy.Multiplier
			b.MaxInterval = policy.Cap
		})),
		backoff.WithMaxElapsedTime(policy.Budget),
	)
	if err != nil {
		logger.Warn().Str("op", op).Int("attempts", attempt).Err(err).Msg("retry: budget exhausted")
	}
	return result, err
}
