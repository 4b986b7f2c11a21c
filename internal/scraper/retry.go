package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries     int           // Retries after the first attempt
	InitialBackoff time.Duration // Doubles each retry
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
	}
}

// ErrMaxRetriesExceeded indicates all retry attempts failed.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithRetry executes fn with exponential backoff. Permanent errors and
// context cancellation stop immediately.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, logger *zap.Logger, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("retry succeeded", zap.String("op", operation), zap.Int("attempt", attempt+1))
			}
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		logger.Debug("attempt failed",
			zap.String("op", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max", cfg.MaxRetries+1),
			zap.Error(err))

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(calculateBackoff(cfg, attempt)):
			}
		}
	}

	if cfg.MaxRetries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w for %s: %w", ErrMaxRetriesExceeded, operation, lastErr)
}

// calculateBackoff computes exponential backoff.
func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
