package natsutil

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn until it succeeds, the attempts run out or ctx ends.
//
// The delay between attempts starts at initialBackoff and doubles each time.
// maxAttempts <= 0 means 3.
func Retry(ctx context.Context, maxAttempts int, initialBackoff time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := range maxAttempts {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context done after %d attempts: %w", attempt+1, lastErr)
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context done after %d attempts: %w", attempt+1, lastErr)
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr)
}
