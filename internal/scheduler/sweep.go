package scheduler

import (
	"context"
	"log"
	"time"
)

// NoShowProcessor is the engine operation the sweep invokes each pass.
type NoShowProcessor interface {
	ProcessNoShows(ctx context.Context) error
}

// Sweep is the low-frequency fallback that catches CONFIRMED bookings
// whose grace period lapsed without a check-in.  Grace-period expiry
// has no pre-armable event (the period is fetched dynamically from
// policy), so it is swept rather than scheduled.
type Sweep struct {
	interval time.Duration
	proc     NoShowProcessor
	quit     chan struct{}
}

// NewSweep returns a sweep running at the given interval (default five
// minutes when non-positive).
func NewSweep(interval time.Duration, proc NoShowProcessor) *Sweep {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweep{interval: interval, proc: proc, quit: make(chan struct{})}
}

// Run blocks, invoking ProcessNoShows every interval until Stop is
// called.  Errors are logged and the loop keeps running; a failed pass
// is retried wholesale on the next tick.
func (s *Sweep) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.proc.ProcessNoShows(context.Background()); err != nil {
				log.Printf("sweep: no-show pass failed: %v", err)
			}
		case <-s.quit:
			return
		}
	}
}

// Stop terminates the sweep loop.
func (s *Sweep) Stop() { close(s.quit) }
