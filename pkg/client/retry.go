package client

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/Sternrassler/meta-ads-proxy/pkg/query"
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
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

// Backoff returns the delay before retry attempt n (0-indexed):
// base * 2^n, without jitter. The result saturates instead of overflowing.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return base
	}
	if attempt >= 63 || base > time.Duration(math.MaxInt64>>uint(attempt)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(attempt)
}

// GetWithRetry performs Get, retrying rate-limited responses up to
// maxRetries times with exponential backoff. Any other error is returned
// immediately. When the budget is exhausted the returned error wraps both
// ErrRetryExhausted and the last *UpstreamError.
func (c *Client) GetWithRetry(ctx context.Context, path string, params *query.Params, maxRetries int) (*Envelope, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	logger := logging.FromContext(ctx, c.logger)

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		env, err := c.Get(ctx, path, params)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Str("endpoint", endpointLabel(path)).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return env, nil
		}

		lastErr = err

		// Only throttling is retried; everything else is fatal.
		if !IsRateLimited(err) {
			return nil, err
		}

		// If this was the last attempt, don't wait
		if attempt == maxRetries {
			break
		}

		delay := Backoff(c.config.BaseDelay, attempt)
		graphRetriesTotal.Inc()
		graphRetryBackoffSeconds.Observe(delay.Seconds())

		logger.Warn().
			Str("endpoint", endpointLabel(path)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Rate limited, retrying after backoff")

		if err := c.sleep(ctx, delay); err != nil {
			logger.Warn().
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	graphRetryExhaustedTotal.Inc()
	logger.Error().
		Str("endpoint", endpointLabel(path)).
		Int("max_attempts", maxRetries+1).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxRetries+1, lastErr)
}
