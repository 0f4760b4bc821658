// Package loginguard locks an identifier out after consecutive failed logins.
package loginguard

import (
	"errors"
	"sync"
	"time"

	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
)

const (
	defaultMaxAttempts = 5
	defaultLockout     = 15 * time.Minute
)

type Config struct {
	// Failures allowed before lockout and lockout duration
	// If not set than default is used
	MaxAttempts int
	Lockout     time.Duration
}

type entry struct {
	failures    int
	lastFailure time.Time

	// Attempts begun and not finished yet, they count toward the limit
	inFlight int
}

type Status struct {
	CanAttempt bool

	// Attempts left before lockout, set when CanAttempt
	RemainingAttempts int

	// Time until lockout ends, set when not CanAttempt
	LockoutRemaining time.Duration
}

// LockoutMinutes rounds LockoutRemaining up to whole minutes
func (s Status) LockoutMinutes() int {
	return clock.RoundUp(s.LockoutRemaining, time.Minute)
}

// Attempt holds a slot taken by Begin until its outcome is known
// Only the first of Succeeded, Failed or Abandon has effect
type Attempt struct {
	guard      *Guard
	identifier string
	once       sync.Once
}

func (a *Attempt) Succeeded() { a.finish(outcomeSuccess) }
func (a *Attempt) Failed()    { a.finish(outcomeFailure) }

// Abandon frees the slot without counting the attempt, e.g. when credentials could not be checked
func (a *Attempt) Abandon() { a.finish(outcomeNone) }

func (a *Attempt) finish(o outcome) {
	a.once.Do(func() { a.guard.finish(a.identifier, o) })
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSuccess
	outcomeFailure
)

type Guard struct {
	maxAttempts int
	lockout     time.Duration
	clock       clock.Clock
	logger      logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func New(cfg Config, clk clock.Clock, l logger.Logger) (*Guard, error) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Lockout == 0 {
		cfg.Lockout = defaultLockout
	}
	if cfg.MaxAttempts < 0 || cfg.Lockout < 0 {
		return nil, errors.New("max attempts and lockout must be positive")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Guard{
		maxAttempts: cfg.MaxAttempts,
		lockout:     cfg.Lockout,
		clock:       clk,
		logger:      l,
		entries:     make(map[string]*entry),
	}, nil
}

// Check whether identifier may attempt to log in now
func (g *Guard) Check(identifier string) Status {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.status(g.current(identifier, now), now)
}

// Begin checks identifier and, if it may attempt, takes a slot under the same lock
// Concurrent attempts can't all pass: every begun attempt counts as a failure until it finishes
// Attempt is nil when not CanAttempt
func (g *Guard) Begin(identifier string) (Status, *Attempt) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	e := g.current(identifier, now)
	status := g.status(e, now)
	if !status.CanAttempt {
		return status, nil
	}

	if e == nil {
		e = &entry{}
		g.entries[identifier] = e
	}
	e.inFlight++

	return status, &Attempt{guard: g, identifier: identifier}
}

// Record attempt outcome
// Success clears every previous failure, failure counts one more and refreshes the lockout start
func (g *Guard) Record(identifier string, success bool) {
	o := outcomeFailure
	if success {
		o = outcomeSuccess
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.record(identifier, o, g.clock.Now())
}

// Sweep drops entries whose lockout window passed
func (g *Guard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for id, e := range g.entries {
		if e.inFlight == 0 && g.elapsed(e, now) {
			delete(g.entries, id)
			count++
		}
	}
	return count
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *Guard) finish(identifier string, o outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[identifier]; ok && e.inFlight > 0 {
		e.inFlight--
	}
	g.record(identifier, o, g.clock.Now())
}

// Entry of identifier with elapsed failures forgotten, nil if there is nothing to keep
// Has to be called with mu held
func (g *Guard) current(identifier string, now time.Time) *entry {
	e, ok := g.entries[identifier]
	if !ok {
		return nil
	}

	if e.failures > 0 && g.elapsed(e, now) {
		e.failures = 0
	}
	if e.failures == 0 && e.inFlight == 0 {
		delete(g.entries, identifier)
		return nil
	}
	return e
}

func (g *Guard) status(e *entry, now time.Time) Status {
	if e == nil {
		return Status{CanAttempt: true, RemainingAttempts: g.maxAttempts}
	}

	if e.failures >= g.maxAttempts {
		return Status{CanAttempt: false, LockoutRemaining: e.lastFailure.Add(g.lockout).Sub(now)}
	}

	// Pending attempts may all fail, then lockout starts about now
	if e.failures+e.inFlight >= g.maxAttempts {
		return Status{CanAttempt: false, LockoutRemaining: g.lockout}
	}

	return Status{CanAttempt: true, RemainingAttempts: g.maxAttempts - e.failures - e.inFlight}
}

// Has to be called with mu held
func (g *Guard) record(identifier string, o outcome, now time.Time) {
	e := g.current(identifier, now)

	switch o {
	case outcomeNone:
		return
	case outcomeSuccess:
		if e != nil {
			e.failures = 0
			if e.inFlight == 0 {
				delete(g.entries, identifier)
			}
		}
		return
	}

	if e == nil {
		e = &entry{}
		g.entries[identifier] = e
	}
	e.failures++
	e.lastFailure = now

	if e.failures == g.maxAttempts {
		g.logger.Warn("Login locked out", "identifier", identifier, "failures", e.failures, "lockout", g.lockout)
	}
}

func (g *Guard) elapsed(e *entry, now time.Time) bool {
	return !now.Before(e.lastFailure.Add(g.lockout))
}
