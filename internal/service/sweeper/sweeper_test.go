package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/service/auth/revocation"
	"github.com/nkiryanov/authcore/internal/service/ratelimit"
)

type countingStore struct {
	mu    sync.Mutex
	calls []time.Time
}

func (s *countingStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return 1
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestSweeper(t *testing.T) {
	testNow := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("default interval", func(t *testing.T) {
		s := New(0, nil, logger.NewNoOpLogger())

		require.Equal(t, defaultInterval, s.interval)
	})

	t.Run("sweep once passes clock time", func(t *testing.T) {
		clk := clock.NewMock(testNow)
		first, second := &countingStore{}, &countingStore{}
		s := New(time.Minute, clk, logger.NewNoOpLogger(),
			Target{Name: "first", Store: first},
			Target{Name: "second", Store: second},
		)

		removed := s.SweepOnce()

		require.Equal(t, 2, removed)
		require.Equal(t, []time.Time{testNow}, first.calls)
		require.Equal(t, []time.Time{testNow}, second.calls)
	})

	t.Run("sweep real stores", func(t *testing.T) {
		clk := clock.NewMock(testNow)
		registry := revocation.New(clk)
		registry.Register("jti-1", "user-1", testNow.Add(time.Minute))
		registry.Register("jti-2", "user-1", testNow.Add(time.Hour))
		limiter, err := ratelimit.New(ratelimit.Config{Window: time.Minute, Ceiling: 10}, clk)
		require.NoError(t, err)
		limiter.Allow("ip1")

		s := New(time.Minute, clk, logger.NewNoOpLogger(),
			Target{Name: "refresh tokens", Store: registry},
			Target{Name: "rate limits", Store: limiter},
		)
		clk.Advance(2 * time.Minute)

		require.Equal(t, 2, s.SweepOnce())
		require.Equal(t, 1, registry.Len())
		require.Equal(t, 0, limiter.Len())
	})

	t.Run("run ticks until context done", func(t *testing.T) {
		store := &countingStore{}
		s := New(10*time.Millisecond, nil, logger.NewNoOpLogger(), Target{Name: "store", Store: store})
		ctx, cancel := context.WithCancel(context.Background())

		stopped := s.Run(ctx)
		require.Eventually(t, func() bool { return store.count() >= 2 }, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("sweeper not stopped after context cancel")
		}
	})
}
