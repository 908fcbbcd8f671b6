package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()
	// 10 RPS with burst 1 leaves a ~100ms gap between tokens.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "search"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "search"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentKeys(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "search"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "metadata"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "metadata blocked by search budget")
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "search"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ConfigureOverride(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	l.Configure("metadata", Config{RPS: 0.5, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "metadata"))
	require.Error(t, l.Wait(ctx, "metadata"))
	require.NoError(t, l.Wait(context.Background(), "search"))
}

func TestLimiter_Nil(t *testing.T) {
	t.Parallel()
	var l *Limiter
	require.NoError(t, l.Wait(context.Background(), "search"))
}
