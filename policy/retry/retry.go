// Package retry implements the bounded, jittered retry loop shared by
// callers that wrap a flaky backend call: classify the error, sleep on the
// injected clock, try again, up to a fixed attempt budget.
package retry

import (
	"context"
	"errors"

	"agentruntime/ports"
)

// ErrContextNil is returned when Do is called with a nil context, which
// would otherwise panic on the first ctx.Err() check.
var ErrContextNil = errors.New("retry: context is nil")

// Config controls how many times Do will call fn and which errors are
// worth retrying at all.
type Config struct {
	MaxAttempts int
	// ShouldRetry decides whether err is worth another attempt. Nil means
	// retry everything except context cancellation/deadline errors.
	ShouldRetry func(error) bool
}

// Do calls fn until it succeeds, cfg.ShouldRetry rejects the error, ctx is
// done, or cfg.MaxAttempts attempts are spent. Between a failed attempt and
// the next, Do sleeps on clock for backoff[attempt] nanoseconds, clamping to
// the last entry of backoff once attempt runs past its length; a nil or
// empty backoff means no sleep between attempts. attempt is 0-indexed.
func Do[T any](ctx context.Context, clock ports.Clock, cfg Config, backoff []int64, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrContextNil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}

	attempts := normalizedAttempts(cfg.MaxAttempts)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
		}
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts-1 || !shouldRetry(ctx, cfg, err) {
			break
		}
		if delay, ok := backoffFor(backoff, attempt); ok {
			if sleepErr := clock.Sleep(ctx, delay); sleepErr != nil {
				return zero, sleepErr
			}
		}
	}
	return zero, lastErr
}

func backoffFor(backoff []int64, attempt int) (int64, bool) {
	if len(backoff) == 0 {
		return 0, false
	}
	if attempt < len(backoff) {
		return backoff[attempt], true
	}
	return backoff[len(backoff)-1], true
}

func normalizedAttempts(maxAttempts int) int {
	if maxAttempts < 1 {
		return 1
	}
	return maxAttempts
}

func shouldRetry(ctx context.Context, cfg Config, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cfg.ShouldRetry == nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return true
	}
	return cfg.ShouldRetry(err)
}
