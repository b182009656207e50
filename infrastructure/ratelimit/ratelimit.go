// Package ratelimit provides a thin token-bucket wrapper used to pace
// outbound operations: discovery polling, ledger-adapter submissions, and
// verifier-lane budget checks.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config configures a Limiter's token bucket.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns a permissive default suitable for local development.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 20, Burst: 40}
}

// Limiter wraps golang.org/x/time/rate.Limiter with a Reset that rebuilds
// the bucket from its original configuration, for tests and hot-reload.
type Limiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	cfg     Config
}

// New constructs a Limiter. Non-positive RequestsPerSecond falls back to
// DefaultConfig, and non-positive Burst defaults to twice the rate.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()
	return limiter.Wait(ctx)
}

// Allow reports whether a token is available right now, consuming one if so.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow()
}

// Reset rebuilds the token bucket from the Limiter's original configuration,
// discarding any accumulated burst credit.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
}

// noopLimiter satisfies callers that want an always-allow limiter without a
// nil check at every call site.
type noopLimiter struct{}

func (noopLimiter) Wait(ctx context.Context) error { return ctx.Err() }
func (noopLimiter) Allow() bool                    { return true }

// Unlimited returns a Waiter that never throttles, for callers that want
// rate limiting disabled without special-casing a nil *Limiter.
func Unlimited() Waiter { return noopLimiter{} }

// Waiter is the subset of Limiter most callers depend on, letting them
// accept either a real *Limiter or Unlimited() interchangeably.
type Waiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

var _ Waiter = (*Limiter)(nil)
