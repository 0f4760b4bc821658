package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	t.Run("real is close to now", func(t *testing.T) {
		require.WithinDuration(t, time.Now(), Real{}.Now(), time.Second)
	})

	t.Run("mock advance and set", func(t *testing.T) {
		start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		m := NewMock(start)

		require.Equal(t, start, m.Now())

		m.Advance(61 * time.Second)
		require.Equal(t, start.Add(61*time.Second), m.Now())

		m.Set(start)
		require.Equal(t, start, m.Now(), "set has to override advanced time")
	})
}

func TestRoundUp(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		unit time.Duration
		want int
	}{
		{name: "exact seconds", d: 3 * time.Second, unit: time.Second, want: 3},
		{name: "fraction of second", d: 2*time.Second + time.Millisecond, unit: time.Second, want: 3},
		{name: "minutes", d: 14*time.Minute + time.Second, unit: time.Minute, want: 15},
		{name: "zero", d: 0, unit: time.Minute, want: 0},
		{name: "negative", d: -time.Second, unit: time.Second, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RoundUp(tt.d, tt.unit))
		})
	}
}
