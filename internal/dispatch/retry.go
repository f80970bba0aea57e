package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/fleet-rides/internal/observability"
)

// RetryPolicy bounds connection establishment. It never applies to
// individual messages.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Backoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second}
}

// connectWithRetry runs connect until it succeeds, the attempts run out or
// ctx is done. The delay doubles after every failure up to MaxBackoff.
func connectWithRetry(ctx context.Context, logger *slog.Logger, transport string, p RetryPolicy, connect func(context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Backoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info("transport connecting", "transport", transport, "attempt", attempt, "max_attempts", attempts)
		if err = connect(ctx); err == nil {
			observability.DispatchConnectAttempts.WithLabelValues(transport, "ok").Inc()
			logger.Info("transport connected", "transport", transport, "attempt", attempt)
			return nil
		}
		observability.DispatchConnectAttempts.WithLabelValues(transport, "error").Inc()
		logger.Warn("transport connection failed", "transport", transport, "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	}
	return fmt.Errorf("%s: connect failed after %d attempts: %w", transport, attempts, err)
}
