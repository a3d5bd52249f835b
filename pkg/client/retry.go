package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	catalogRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	catalogRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_retry_exhausted_total",
		Help: "Total number of pages that exhausted all attempts",
	})
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy holds the configuration for retry logic.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first request.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// Sleep performs the wait. Nil means SleepContext.
	Sleep Sleeper
}

// DefaultRetryPolicy returns three attempts spaced two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		Sleep:       SleepContext,
	}
}

// SleepContext sleeps for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds or MaxAttempts is reached, waiting Delay
// between attempts. It returns the number of attempts made. On exhaustion the
// error wraps both ErrRetryExhausted and the last attempt's error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		// If this was the last attempt, don't wait
		if attempt == maxAttempts {
			break
		}

		errorClass := ClassOf(err)
		catalogRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", p.Delay).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, p.Delay); err != nil {
			log.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	// All retries exhausted
	catalogRetryExhaustedTotal.Inc()
	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
