// Package ready probes whether a freshly provisioned dependency is serving.
package ready

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultAttempts bounds the readiness wait.
	DefaultAttempts = 30
	// DefaultInterval is the fixed delay between attempts.
	DefaultInterval = 2 * time.Second

	// probeTimeout bounds a single probe; the retry budget lives in Wait.
	probeTimeout = time.Second
)

// Checker performs a single readiness probe against an address.
type Checker interface {
	Check(ctx context.Context, addr string) error
}

// Wait polls checker at a fixed interval until it succeeds, the attempt
// budget is exhausted, or ctx is cancelled. On exhaustion the returned error
// carries the last probe error so the caller can tell which dependency never
// came up and why.
//
// If onFailure is non-nil it is called after each failed probe.
func Wait(ctx context.Context, checker Checker, addr string, attempts int, interval time.Duration, onFailure func(attempt int, err error)) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := checker.Check(ctx, addr); err == nil {
			return nil
		} else {
			lastErr = err
			if onFailure != nil {
				onFailure(attempt, err)
			}
		}

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("readiness wait cancelled: %w (last probe error: %v)", ctx.Err(), lastErr)
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("not ready after %d attempts over %s (last probe error: %v)",
		attempts, time.Duration(attempts-1)*interval, lastErr)
}
