// Package sweeper periodically drops expired in-memory auth state.
package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
)

const defaultInterval = 5 * time.Minute

// Store that holds expiring entries
// Sweep has to take the same lock as foreground operations and delete only what exists
type sweepable interface {
	Sweep(now time.Time) int
}

type Target struct {
	Name  string
	Store sweepable
}

type Sweeper struct {
	interval time.Duration
	clock    clock.Clock
	logger   logger.Logger
	targets  []Target
}

// New sweeper. Zero interval means default one
func New(interval time.Duration, clk clock.Clock, l logger.Logger, targets ...Target) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{
		interval: interval,
		clock:    clk,
		logger:   l,
		targets:  targets,
	}
}

// Run sweeps every interval until ctx is done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval, "targets", len(s.targets))

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				s.SweepOnce()
			}
		}
	}()

	return stopped
}

// SweepOnce runs every target sweep with the current time and returns total removed entries
func (s *Sweeper) SweepOnce() int {
	now := s.clock.Now()

	total := 0
	for _, t := range s.targets {
		removed := t.Store.Sweep(now)
		total += removed
		if removed > 0 {
			s.logger.Debug("Swept expired entries", "store", t.Name, "removed", removed)
		}
	}

	s.logger.Info("Sweep finished", "removed", total)
	return total
}
