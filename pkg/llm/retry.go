package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// RetryingClient wraps a Client with bounded exponential-backoff retries and
// a circuit breaker. Transport errors, timeouts, and rate-limit responses all
// surface as errors from the inner client; each triggers a retry with a
// doubled delay until maxRetries is exhausted.
type RetryingClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewRetryingClient wraps inner with retry and circuit-breaker behavior.
// A nil logger discards retry warnings.
func NewRetryingClient(inner Client, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryingClient {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "llm",
		// Trip after a sustained failure streak, not one bad chunk.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	})

	return &RetryingClient{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		breaker:    breaker,
		logger:     logger,
	}
}

// Chat calls the inner client, retrying with exponential backoff.
func (c *RetryingClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			c.logger.Warn("retrying llm call",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.inner.Chat(ctx, messages)
		})
		if err == nil {
			return result.(*Response), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("llm call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// Close closes the inner client.
func (c *RetryingClient) Close() error {
	return c.inner.Close()
}
