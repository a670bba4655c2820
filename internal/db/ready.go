package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitForReady retries Ping with exponential backoff until it succeeds or timeout expires.
func WaitForReady(ctx context.Context, p Pinger, timeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		return p.Ping(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("timeout waiting for search backend: %w", err)
	}
	return nil
}
