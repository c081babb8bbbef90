package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FirstDispatchImmediate(t *testing.T) {
	l := NewInterval(time.Second)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_EnforcesInterval(t *testing.T) {
	const interval = 100 * time.Millisecond
	l := NewInterval(interval)
	ctx := context.Background()

	var waits []time.Duration
	l.OnWait(func(d time.Duration) { waits = append(waits, d) })

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	elapsed := time.Since(start)

	// Three dispatches need two full intervals.
	assert.GreaterOrEqual(t, elapsed, 2*interval-20*time.Millisecond)
	assert.Len(t, waits, 2)
}

func TestLimiter_ZeroIntervalDisablesLimiting(t *testing.T) {
	l := NewInterval(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, time.Duration(0), l.Interval())
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := NewInterval(10 * time.Second)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
