package stache

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Shared retry policy applied to every verb call on every transport: up to 3
// attempts with exponential backoff starting at 1s, capped at 10s, plus up to
// 2s of random jitter. The final failure is always surfaced, never swallowed.
// Retries are local to one verb call; they never span a multi-call operation.
const (
	retryMaxAttempts = 3
	retryInitialWait = 1 * time.Second
	retryMaxWait     = 10 * time.Second
	retryMaxJitter   = 2 * time.Second
)

// retryPolicy wraps an operation with the shared backoff schedule. Each
// transport supplies its own retryable predicate.
type retryPolicy struct {
	logger *slog.Logger

	// sleep is replaceable in tests; defaults to a context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(logger *slog.Logger) retryPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return retryPolicy{logger: logger, sleep: sleepContext}
}

// do runs fn up to retryMaxAttempts times, backing off between attempts when
// retryable reports the failure as transient. The last error is returned
// as-is once attempts are exhausted or the failure is terminal.
func (p retryPolicy) do(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	wait := retryInitialWait

	var err error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == retryMaxAttempts || !retryable(err) {
			return err
		}

		delay := wait + rand.N(retryMaxJitter)
		p.logger.Warn("retrying after transient failure",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return err
		}

		wait *= 2
		if wait > retryMaxWait {
			wait = retryMaxWait
		}
	}
	return err
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
