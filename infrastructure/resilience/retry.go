package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness

	// Sleep overrides the wait between attempts, for deterministic tests.
	// Defaults to a context-aware time.After wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Attempt describes one call made by Retry, passed to an optional observer.
type Attempt struct {
	Number int
	Err    error
	Delay  time.Duration
}

// RetryObserved behaves like Retry but invokes onAttempt after every call,
// whether it succeeded or not, so callers can log "per-attempt errors ...
// with attempt count".
func RetryObserved(ctx context.Context, cfg RetryConfig, fn func() error, onAttempt func(Attempt)) error {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if onAttempt != nil {
			onAttempt(Attempt{Number: attempt + 1, Err: err, Delay: delay})
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxAttempts-1 {
			wait := addJitter(delay, cfg.Jitter)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

// Retry executes fn with exponential backoff.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	return RetryObserved(ctx, cfg, fn, nil)
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
