package substrate

import (
	"context"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// Retry backoff parameters (spec.md §4.A "Failure semantics").
const (
	retryBaseDelay  = 500 * time.Millisecond
	retryFactor     = 2
	retryCapDelay   = 8 * time.Second
	retryMaxAttempts = 6
)

// Retry runs op, retrying with exponential backoff while op returns a
// transient *orcherr.Error. Any other error (including a permanent one)
// returns immediately. If the retry budget is exhausted, the last
// transient error is returned as-is so the caller can surface it as a
// substrate error.
func Retry(ctx context.Context, op func(ctx context.Context) error) error {
	delay := retryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		oe := orcherr.Wrap(lastErr)
		if oe.Kind != orcherr.KindTransient {
			return lastErr
		}
		if attempt == retryMaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= retryFactor
		if delay > retryCapDelay {
			delay = retryCapDelay
		}
	}

	return lastErr
}
