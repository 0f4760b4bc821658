// Package ratelimit counts requests per identifier in fixed windows.
// Up to twice the ceiling may pass across a window boundary.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/nkiryanov/authcore/internal/clock"
)

const (
	defaultWindow  = time.Minute
	defaultCeiling = 100
)

type Config struct {
	// Window length and max requests per window
	// If not set than default is used
	Window  time.Duration
	Ceiling int
}

type window struct {
	count   int
	resetAt time.Time
}

// Decision for a single request
type Decision struct {
	Permitted bool

	// Time until the current window resets, set when denied
	ResetIn time.Duration
}

// ResetInSeconds rounds ResetIn up to whole seconds, suitable for Retry-After
func (d Decision) ResetInSeconds() int {
	return clock.RoundUp(d.ResetIn, time.Second)
}

type Limiter struct {
	window  time.Duration
	ceiling int
	clock   clock.Clock

	mu      sync.Mutex
	windows map[string]*window
}

func New(cfg Config, clk clock.Clock) (*Limiter, error) {
	if cfg.Window == 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Ceiling == 0 {
		cfg.Ceiling = defaultCeiling
	}
	if cfg.Window < 0 || cfg.Ceiling < 0 {
		return nil, errors.New("rate limit window and ceiling must be positive")
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Limiter{
		window:  cfg.Window,
		ceiling: cfg.Ceiling,
		clock:   clk,
		windows: make(map[string]*window),
	}, nil
}

// Allow counts request from identifier and decides whether it is permitted
func (l *Limiter) Allow(identifier string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.resetAt) {
		l.windows[identifier] = &window{count: 1, resetAt: now.Add(l.window)}
		return Decision{Permitted: true}
	}

	if w.count >= l.ceiling {
		return Decision{Permitted: false, ResetIn: w.resetAt.Sub(now)}
	}

	w.count++
	return Decision{Permitted: true}
}

// Sweep drops windows that reset before now
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
			count++
		}
	}
	return count
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
