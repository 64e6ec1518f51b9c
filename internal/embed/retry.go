package embed

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures download retry behavior.
type RetryConfig struct {
	MaxRetries   int           // retries beyond the initial attempt
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the backoff delay
	Multiplier   float64       // exponential backoff multiplier
}

// DefaultRetryConfig is tuned for large model downloads over flaky
// links.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// DownloadWithRetry runs fn with exponential backoff. Context
// cancellation aborts immediately, including mid-backoff.
func DownloadWithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if attempt >= cfg.MaxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
