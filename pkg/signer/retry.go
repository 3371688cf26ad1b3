package signer

import (
	"context"
	"time"
)

// RetryPolicy configures retry behavior for device communication
type RetryPolicy struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryPolicy provides default retry settings
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// do runs fn with exponential backoff until it succeeds, the attempts are
// exhausted or the context is cancelled. Returns the last error.
func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < p.MaxAttempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * p.BackoffMultiple)
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}

	return lastErr
}
