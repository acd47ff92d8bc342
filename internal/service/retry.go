package service

import (
	"context"
	"log/slog"
	"time"
)

const (
	retryAttempts     = 3
	retryInitialDelay = time.Second
)

// withRetry runs fn up to retryAttempts times with exponential backoff
// (1s, 2s, ...). Non-retryable errors propagate immediately.
func withRetry(ctx context.Context, op string, fn func() error) error {
	delay := retryInitialDelay

	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == retryAttempts {
			return err
		}

		slog.Info("retrying operation",
			"op", op,
			"attempt", attempt,
			"error", err.Error())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
