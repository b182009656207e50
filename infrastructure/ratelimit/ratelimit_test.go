package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaultsForNonPositiveValues(t *testing.T) {
	l := New(Config{})
	require.NotNil(t, l)
	require.Equal(t, DefaultConfig().RequestsPerSecond, l.cfg.RequestsPerSecond)
	require.Equal(t, DefaultConfig().Burst, l.cfg.Burst)
}

func TestAllowHonorsBurst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(), "burst token %d should be available", i)
	}
	require.False(t, l.Allow(), "burst exhausted, next call should be denied")
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	l := New(Config{RequestsPerSecond: 20, Burst: 1})
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.Greater(t, time.Since(start), time.Duration(0))
}

func TestWaitReturnsErrorWhenContextExpiresFirst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
}

func TestResetRestoresBurstCredit(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 2})
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	l.Reset()
	require.True(t, l.Allow())
}

func TestUnlimitedNeverThrottles(t *testing.T) {
	w := Unlimited()
	for i := 0; i < 1000; i++ {
		require.True(t, w.Allow())
	}
	require.NoError(t, w.Wait(context.Background()))
}
