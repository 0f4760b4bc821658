// Package clock is the single source of "now" for every time based decision.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Real clock backed by time.Now
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Mock is a manually driven clock for tests
// Safe for concurrent use
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *Mock) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RoundUp returns d in whole units, any remainder counts as one more unit
// Non positive d is 0
func RoundUp(d time.Duration, unit time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(d / unit)
	if d%unit != 0 {
		n++
	}
	return n
}
