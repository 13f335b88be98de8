package ledger

import (
	"context"
	"math/rand"
	"time"
)

const (
	baseRetryDelay = 5 * time.Millisecond
	maxRetryDelay  = 200 * time.Millisecond
)

// backoff waits before the next conflict retry. It returns early with the context
// error when the caller gives up.
func backoff(ctx context.Context, attempt int) error {
	delay := baseRetryDelay << attempt
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryBudget(maxRetries int) int {
	if maxRetries <= 0 {
		return DefaultMaxRetries
	}
	return maxRetries
}
