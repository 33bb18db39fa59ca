// Package retry re-runs operations that failed with a transient transport error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"blogwire/internal/config"
	"blogwire/internal/core"
	"blogwire/internal/logger"
)

// Policy defines the configuration for retry behavior
type Policy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy returns the policy used when retries are enabled without overrides
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Disabled runs every operation exactly once
func Disabled() Policy {
	return Policy{MaxAttempts: 1}
}

// FromConfig builds a policy from the retry section. A disabled section yields a
// single-attempt policy.
func FromConfig(c config.Retry) Policy {
	if !c.Enabled {
		return Disabled()
	}
	def := DefaultPolicy()
	p := Policy{
		MaxAttempts:       c.MaxAttempts,
		InitialBackoff:    config.Duration(c.InitialBackoff, def.InitialBackoff),
		MaxBackoff:        config.Duration(c.MaxBackoff, def.MaxBackoff),
		BackoffMultiplier: c.Multiplier,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	return p
}

// CalculateBackoff calculates the wait before retry number attempt (1-based)
func (p Policy) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	return time.Duration(backoff)
}

// IsRetryable reports whether err is a transport failure. Validation, storage and
// generation errors are never retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, core.ErrTransport)
}

// Do runs op until it succeeds, fails with a non-retryable error, the attempts are
// exhausted or ctx is done.
func Do(ctx context.Context, p Policy, name string, op func(context.Context) error) error {
	return do(ctx, p, name, op, logger.Get())
}

func do(ctx context.Context, p Policy, name string, op func(context.Context) error, log *logger.Logger) error {
	attempts := max(p.MaxAttempts, 1)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := p.CalculateBackoff(attempt - 1)
			log.Warn("Retrying operation",
				"operation", name,
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff.String(),
				"last_error", lastErr.Error())

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("operation %s interrupted: %w", name, errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("Operation succeeded after retry", "operation", name, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("operation %s failed after %d attempts: %w", name, attempts, lastErr)
}
