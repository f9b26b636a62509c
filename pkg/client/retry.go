package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// Retry schedule: exponential from 500ms, doubling, capped at 30s per wait.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
)

// withRetry re-attempts op on transient errors (transport, rate-limited,
// locked) up to the configured attempt count. Permanent errors propagate
// immediately. Each retry re-opens the connection; uploads and downloads
// pick their resume offset back up from the server or the local partial.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0 // attempts bound the retries, not wall time

	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !harbor.IsTransient(err) || attempt >= attempts {
			return err
		}

		// The connection may be half-broken even when the error was a
		// server-side transient; re-dial on the next attempt.
		c.drop()

		wait := policy.NextBackOff()
		logger.Debug("retrying after transient error",
			"attempt", attempt,
			"wait", wait.String(),
			logger.KeyError, err.Error())

		select {
		case <-ctx.Done():
			return harbor.E(harbor.KindTransport, "retry", ctx.Err())
		case <-time.After(wait):
		}
	}
}
