// Package retry runs calls with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpggio/qasync/internal/clock"
)

// Policy configures retries. Only errors accepted by Retryable are retried.
type Policy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// AttemptTimeout bounds each attempt; zero means no per-attempt bound.
	AttemptTimeout time.Duration
	Retryable      func(error) bool
	Clock          clock.Clock
	Logger         *slog.Logger
}

// DefaultPolicy returns three attempts starting at 500ms and capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    30 * time.Second,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func (p Policy) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	var lastErr error
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.Info("call succeeded after retry", "operation", operation, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: context canceled: %w", operation, ctx.Err())
		}

		if p.Logger != nil {
			p.Logger.Warn("call failed, retrying",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff,
				"error", err,
			)
		}

		if err := clk.Sleep(ctx, backoff); err != nil {
			return fmt.Errorf("%s: context canceled during backoff: %w", operation, err)
		}
		backoff = time.Duration(float64(backoff) * multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
