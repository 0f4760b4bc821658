package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/clock"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T, window time.Duration, ceiling int) (*Limiter, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock(testNow)
	l, err := New(Config{Window: window, Ceiling: ceiling}, clk)
	require.NoError(t, err)
	return l, clk
}

func TestLimiter(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		l, err := New(Config{}, nil)
		require.NoError(t, err)

		require.Equal(t, defaultWindow, l.window)
		require.Equal(t, defaultCeiling, l.ceiling)
	})

	t.Run("negative config", func(t *testing.T) {
		_, err := New(Config{Window: -time.Second, Ceiling: 1}, nil)
		require.Error(t, err)
	})

	t.Run("ceiling 3 window 60s", func(t *testing.T) {
		l, clk := newLimiter(t, 60*time.Second, 3)

		for i := range 3 {
			require.True(t, l.Allow("ip1").Permitted, "request %d within ceiling must pass", i+1)
		}

		clk.Advance(10 * time.Second)
		denied := l.Allow("ip1")
		require.False(t, denied.Permitted, "fourth request within window must be denied")
		require.Equal(t, 50*time.Second, denied.ResetIn)
		require.LessOrEqual(t, denied.ResetInSeconds(), 60)

		clk.Advance(51 * time.Second)
		require.True(t, l.Allow("ip1").Permitted, "new window after reset")
		require.True(t, l.Allow("ip1").Permitted)
		require.True(t, l.Allow("ip1").Permitted)
		require.False(t, l.Allow("ip1").Permitted, "fresh window counts from one again")
	})

	t.Run("reset exactly at window end", func(t *testing.T) {
		l, clk := newLimiter(t, time.Minute, 1)

		require.True(t, l.Allow("ip1").Permitted)
		require.False(t, l.Allow("ip1").Permitted)

		clk.Advance(time.Minute)
		require.True(t, l.Allow("ip1").Permitted)
	})

	t.Run("identifiers independent", func(t *testing.T) {
		l, _ := newLimiter(t, time.Minute, 1)

		require.True(t, l.Allow("ip1").Permitted)
		require.False(t, l.Allow("ip1").Permitted)
		require.True(t, l.Allow("ip2").Permitted)
	})

	t.Run("reset in seconds rounds up", func(t *testing.T) {
		assert.Equal(t, 0, Decision{}.ResetInSeconds())
		assert.Equal(t, 1, Decision{ResetIn: 10 * time.Millisecond}.ResetInSeconds())
		assert.Equal(t, 2, Decision{ResetIn: 2 * time.Second}.ResetInSeconds())
	})

	t.Run("concurrent requests never exceed ceiling", func(t *testing.T) {
		l, _ := newLimiter(t, time.Minute, 10)

		var permitted atomic.Int32
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow("ip1").Permitted {
					permitted.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 10, permitted.Load())
	})

	t.Run("sweep stale windows", func(t *testing.T) {
		l, clk := newLimiter(t, time.Minute, 5)
		l.Allow("ip1")
		clk.Advance(30 * time.Second)
		l.Allow("ip2")

		require.Equal(t, 1, l.Sweep(testNow.Add(time.Minute)), "only first window elapsed")
		require.Equal(t, 1, l.Len())
		require.Equal(t, 1, l.Sweep(testNow.Add(2*time.Minute)))
		require.Equal(t, 0, l.Len())
	})
}
