// Package retry provides bounded retries with exponential backoff.
//
// Only errors accepted by the caller's IsRetryableFunc are retried; everything
// else is returned untouched so callers can keep classifying it.
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//	    return exec(ctx)
//	}, isBusy)
//
//	var exceeded *retry.RetriesExceededError
//	if errors.As(err, &exceeded) {
//	    // every attempt hit a retryable error
//	}
//
// Timing is injectable through Config.Now and Config.After for tests.
package retry
