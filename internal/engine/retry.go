package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// RetryConfig configures retry behavior for calls to external collaborators.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3
	Attempts int

	// InitialBackoff is the wait before the second attempt.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	// Default: 30 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:          3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()

	if c.Attempts <= 0 {
		c.Attempts = defaults.Attempts
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// retry runs op until it succeeds, fails with a non-transport error, the
// attempts are used up, or ctx is done. The last error is returned.
func retry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, opName string, op func(context.Context) error) error {
	backoff := cfg.InitialBackoff
	var err error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err = op(ctx)
		if err == nil || !domain.IsTransportError(err) {
			return err
		}
		if attempt == cfg.Attempts {
			break
		}

		logger.Warn("transient failure, retrying",
			"op", opName,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return err
}
