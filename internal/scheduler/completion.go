// Package scheduler owns the event-driven completion timers and the
// periodic no-show sweep.  One timer is armed per in-flight booking;
// when it fires, the booking id is handed to a bounded worker pool that
// re-enters the lifecycle engine's Complete operation.  The timer table
// is a derived cache of pending work: the store stays the single source
// of truth and the table is rebuilt from it on startup.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
)

// Completer is re-entered by the scheduler when a completion timer
// fires.  The implementation must be idempotent: a fire against a
// booking that is missing or already terminal is a no-op.
type Completer interface {
	Complete(ctx context.Context, bookingID uint64) error
}

// RecoverySource supplies the active bookings whose completion timers
// must be re-armed after a restart.
type RecoverySource interface {
	ListActiveEndingAfter(ctx context.Context, now time.Time) ([]model.Booking, error)
}

// Completion schedules exactly one automatic terminal-transition
// attempt at (or immediately after) each booking's end instant.  All
// access to the id->timer table is serialized through a mutex so a
// cancel racing a schedule can never leave two timers alive for one
// booking.
type Completion struct {
	mu     sync.Mutex
	timers map[uint64]*time.Timer

	fires chan uint64
	quit  chan struct{}
	wg    sync.WaitGroup

	completer Completer
	now       func() time.Time
}

// NewCompletion returns a scheduler whose fires are processed by the
// given number of workers.  now is injectable for tests; pass nil for
// wall-clock time.
func NewCompletion(workers int, now func() time.Time) *Completion {
	if workers <= 0 {
		workers = 4
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	c := &Completion{
		timers: make(map[uint64]*time.Timer),
		fires:  make(chan uint64, 256),
		quit:   make(chan struct{}),
		now:    now,
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

// Start binds the lifecycle engine the workers re-enter on each fire.
// It must be called before any timer can fire; the split from
// NewCompletion breaks the construction cycle between the engine and
// the scheduler.
func (c *Completion) Start(completer Completer) {
	c.mu.Lock()
	c.completer = completer
	c.mu.Unlock()
}

// Schedule arms (or re-arms) the completion timer for a booking.  Any
// existing timer for the id is canceled first, so a window update
// replaces rather than duplicates.  An end time already in the past is
// fired immediately instead of armed.
func (c *Completion) Schedule(bookingID uint64, endTime time.Time) {
	c.mu.Lock()
	c.stopLocked(bookingID)

	delay := endTime.Sub(c.now())
	if delay <= 0 {
		c.mu.Unlock()
		log.Printf("scheduler: booking %d already expired, processing immediately", bookingID)
		c.enqueue(bookingID)
		return
	}

	log.Printf("scheduler: booking %d completion scheduled for %s", bookingID, endTime.UTC().Format(time.RFC3339))
	c.timers[bookingID] = time.AfterFunc(delay, func() {
		c.fire(bookingID)
	})
	c.mu.Unlock()
}

// Cancel removes and stops any pending timer for the booking; it is a
// no-op when none exists.  A fire already executing is not interrupted;
// its own terminal-status re-check turns it into a no-op.
func (c *Completion) Cancel(bookingID uint64) {
	c.mu.Lock()
	c.stopLocked(bookingID)
	c.mu.Unlock()
}

// RecoverOnStartup re-arms a timer for every CONFIRMED or CHECKED_IN
// booking whose end lies in the future.  It must run before the service
// accepts traffic so a restart cannot leave expired bookings
// unresolved.  Bookings whose end passed while the process was down are
// fired immediately by Schedule.
func (c *Completion) RecoverOnStartup(ctx context.Context, src RecoverySource) error {
	active, err := src.ListActiveEndingAfter(ctx, c.now())
	if err != nil {
		return err
	}
	for i := range active {
		c.Schedule(active[i].ID, active[i].EndTime)
	}
	log.Printf("scheduler: recovered %d pending completion timers", len(active))
	return nil
}

// Pending returns the number of armed timers.  It exists for tests and
// diagnostics; domain decisions never consult the timer table.
func (c *Completion) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Close stops the worker pool.  Armed timers may still fire but their
// ids are dropped.
func (c *Completion) Close() {
	close(c.quit)
	c.wg.Wait()
}

// stopLocked stops and removes the timer for an id.  Callers hold mu.
func (c *Completion) stopLocked(bookingID uint64) {
	if t, ok := c.timers[bookingID]; ok {
		t.Stop()
		delete(c.timers, bookingID)
	}
}

// fire runs on the timer goroutine.  The entry is removed before the
// id is queued so the table never carries a dangling timer, whatever
// the outcome of the completion attempt.
func (c *Completion) fire(bookingID uint64) {
	c.mu.Lock()
	delete(c.timers, bookingID)
	c.mu.Unlock()
	c.enqueue(bookingID)
}

func (c *Completion) enqueue(bookingID uint64) {
	select {
	case c.fires <- bookingID:
	case <-c.quit:
	}
}

func (c *Completion) worker() {
	defer c.wg.Done()
	for {
		select {
		case id := <-c.fires:
			c.mu.Lock()
			completer := c.completer
			c.mu.Unlock()
			if completer == nil {
				log.Printf("scheduler: dropping fire for booking %d, no completer bound", id)
				continue
			}
			if err := completer.Complete(context.Background(), id); err != nil {
				log.Printf("scheduler: completion of booking %d failed: %v", id, err)
			}
		case <-c.quit:
			return
		}
	}
}
