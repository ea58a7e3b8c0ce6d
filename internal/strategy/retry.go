package strategy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/classify"
)

const retryBaseDelay = 1 * time.Second

// withRetry runs op up to maxAttempts times with exponential backoff
// starting at one second and doubling. Only transient classified kinds
// (timeout, rate limit, network) are retried; terminal kinds return
// immediately.
func withRetry(ctx context.Context, logger *logrus.Logger, maxAttempts int, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		kind := classify.KindOf(lastErr)
		if !classify.IsRetryable(kind) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		logger.Warnf("attempt %d/%d failed (%s), retrying in %s: %v",
			attempt, maxAttempts, kind, delay, lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return classify.Wrap(classify.KindTimeout, ctx.Err())
		}
		delay *= 2
	}
	return lastErr
}
