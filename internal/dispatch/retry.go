package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
	"github.com/campushub/notify/internal/sender"
)

// RetryConfig parameterizes the bounded retry loop around a single sender.
type RetryConfig struct {
	MaxAttempts    int           // inner attempts per dispatch call
	AttemptTimeout time.Duration // timeout for each individual sender call
	BaseDelay      time.Duration // backoff unit; delay is BaseDelay * 2^attempt
}

// Retrier wraps one sender call with bounded retry, exponential delay between
// attempts, and terminal-failure short-circuiting. The inner retries are one
// logical delivery attempt; the aggregate's sendAttempts counter is
// incremented once per dispatch call, after the loop concludes.
type Retrier struct {
	config RetryConfig
	logger *zap.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with defaults filled in.
func NewRetrier(cfg RetryConfig, logger *zap.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}

	return &Retrier{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Backoff returns the delay inserted after the given 1-based attempt:
// base * 2^attempt, so attempt 1 waits 2 units and attempt 2 waits 4.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt))
}

// Run drives the retry loop. It returns the final sender result, or a non-nil
// error only when the context was canceled — a canceled run must not be
// recorded as sent or failed.
func (r *Retrier) Run(ctx context.Context, s sender.Sender, n *notification.Notification) (sender.Result, error) {
	var result sender.Result

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return sender.Result{}, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
		result = s.Deliver(attemptCtx, n)
		cancel()

		// A cancellation mid-call surfaces as a sender failure; report it
		// as cancellation so the notification stays pending.
		if err := ctx.Err(); err != nil {
			return sender.Result{}, err
		}

		if result.Delivered {
			return result, nil
		}
		if result.Kind == sender.FailureTerminal {
			r.logger.Warn("terminal delivery failure, not retrying",
				zap.String("id", n.ID().String()),
				zap.String("channel", string(n.Channel())),
				zap.String("reason", result.Reason),
			)
			return result, nil
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := Backoff(r.config.BaseDelay, attempt)
		r.logger.Debug("transient delivery failure, backing off",
			zap.String("id", n.ID().String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("reason", result.Reason),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return sender.Result{}, err
		}
	}

	r.logger.Warn("delivery retries exhausted",
		zap.String("id", n.ID().String()),
		zap.Int("max_attempts", r.config.MaxAttempts),
		zap.String("reason", result.Reason),
	)

	return result, nil
}

// sleepContext waits for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
