// Package service implements the booking lifecycle engine: admission
// (overlap + policy), the state machine transitions, and the glue to
// the completion scheduler and the event stream.  Every mutating
// operation runs its overlap check, policy check and write inside one
// transaction while holding the resource advisory lock; scheduler calls
// and event emission happen strictly after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
	"github.com/LibraryBookingSystem/booking-service/internal/queue"
	"github.com/LibraryBookingSystem/booking-service/internal/repository"
)

// Elevated roles may cancel bookings they do not own.
func elevated(role string) bool {
	return role == "ADMIN" || role == "LIBRARIAN"
}

// BookingService orchestrates the booking lifecycle.
type BookingService struct {
	store   Store
	policy  PolicyGateway
	users   UserDirectory
	catalog ResourceCatalog
	events  EventPublisher
	sched   CompletionScheduler
	now     func() time.Time
}

// NewBookingService wires the engine.  now is injectable for tests;
// pass nil for wall-clock UTC.
func NewBookingService(store Store, policy PolicyGateway, users UserDirectory, catalog ResourceCatalog, events EventPublisher, sched CompletionScheduler, now func() time.Time) *BookingService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &BookingService{
		store:   store,
		policy:  policy,
		users:   users,
		catalog: catalog,
		events:  events,
		sched:   sched,
		now:     now,
	}
}

// Create admits a new booking for the user on the resource over
// [start, end).  On success the booking is CONFIRMED, its completion
// timer armed, and a booking.created event emitted.  A window whose end
// already passed is legal; the scheduler resolves it immediately.
func (s *BookingService) Create(ctx context.Context, userID, resourceID uint64, start, end time.Time) (*model.Booking, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("start time must be before end time: %w", repository.ErrConflict)
	}

	restricted, err := s.users.IsRestricted(ctx, userID)
	if err != nil {
		return nil, err
	}
	if restricted {
		return nil, fmt.Errorf("user account is restricted: %w", repository.ErrForbidden)
	}

	resourceName, err := s.catalog.ResourceName(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	release, err := s.store.LockResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	code, err := repository.NewCheckInCode()
	if err != nil {
		return nil, err
	}
	booking := &model.Booking{
		UserID:      userID,
		ResourceID:  resourceID,
		StartTime:   start,
		EndTime:     end,
		Status:      model.StatusConfirmed,
		CheckInCode: code,
	}

	err = s.store.InTx(ctx, func(tx StoreTx) error {
		overlapping, err := tx.FindOverlapping(ctx, resourceID, start, end, 0)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return fmt.Errorf("resource is already booked for the requested time slot: %w", repository.ErrConflict)
		}
		activeCount, err := tx.CountActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		valid, violations, err := s.policy.Validate(ctx, start, end, userID, activeCount)
		if err != nil {
			return err
		}
		if !valid {
			return &repository.ValidationError{Violations: violations}
		}
		return tx.Create(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("booking: created %s (id %d) for user %d on resource %d", booking.CheckInCode, booking.ID, userID, resourceID)
	s.sched.Schedule(booking.ID, booking.EndTime)
	s.emit(ctx, queue.KeyBookingCreated, booking, resourceName)
	return booking, nil
}

// GetByID returns one booking.  Callers see only their own bookings
// unless they hold an elevated role.
func (s *BookingService) GetByID(ctx context.Context, id, userID uint64, role string) (*model.Booking, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID && !elevated(role) {
		return nil, fmt.Errorf("booking %d: %w", id, repository.ErrForbidden)
	}
	return b, nil
}

// ListAll returns every booking; reserved for elevated roles.
func (s *BookingService) ListAll(ctx context.Context) ([]model.Booking, error) {
	return s.store.ListAll(ctx)
}

// ListByUser returns the user's bookings, newest first.
func (s *BookingService) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListByResource returns all bookings against a resource.
func (s *BookingService) ListByResource(ctx context.Context, resourceID uint64) ([]model.Booking, error) {
	return s.store.ListByResource(ctx, resourceID)
}

// ListActiveResourceIDs returns the resources occupied right now.
func (s *BookingService) ListActiveResourceIDs(ctx context.Context) ([]uint64, error) {
	return s.store.ListActiveResourceIDs(ctx, s.now())
}

// Update moves a CONFIRMED booking to a new window.  Nil start or end
// keeps the existing bound.  The new window passes the same overlap and
// policy admission as a create, excluding the booking's own prior
// record; on success the completion timer is re-armed for the new end.
func (s *BookingService) Update(ctx context.Context, id, userID uint64, newStart, newEnd *time.Time) (*model.Booking, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID {
		return nil, fmt.Errorf("booking %d: %w", id, repository.ErrForbidden)
	}

	release, err := s.store.LockResource(ctx, current.ResourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *model.Booking
	err = s.store.InTx(ctx, func(tx StoreTx) error {
		b, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return fmt.Errorf("booking %d: %w", id, repository.ErrForbidden)
		}
		if err := b.CanUpdate(); err != nil {
			return fmt.Errorf("%s: %w", err.Error(), repository.ErrConflict)
		}
		start, end := b.StartTime, b.EndTime
		if newStart != nil {
			start = newStart.UTC()
		}
		if newEnd != nil {
			end = newEnd.UTC()
		}
		if !start.Before(end) {
			return fmt.Errorf("start time must be before end time: %w", repository.ErrConflict)
		}
		overlapping, err := tx.FindOverlapping(ctx, b.ResourceID, start, end, id)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return fmt.Errorf("resource is already booked for the requested time slot: %w", repository.ErrConflict)
		}
		activeCount, err := tx.CountActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		valid, violations, err := s.policy.Validate(ctx, start, end, userID, activeCount)
		if err != nil {
			return err
		}
		if !valid {
			return &repository.ValidationError{Violations: violations}
		}
		if err := tx.UpdateWindow(ctx, id, start, end); err != nil {
			return err
		}
		b.StartTime, b.EndTime = start, end
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("booking: updated %s (id %d), window [%s, %s)", updated.CheckInCode, id,
		updated.StartTime.Format(time.RFC3339), updated.EndTime.Format(time.RFC3339))
	s.sched.Schedule(id, updated.EndTime)
	s.emit(ctx, queue.KeyBookingUpdated, updated, "")
	return updated, nil
}

// Cancel terminates a booking.  The owner may cancel their own booking
// from any non-terminal state, including CHECKED_IN; elevated roles may
// cancel on behalf of others.  The pending completion timer is dropped
// after commit; a fire already in flight no-ops on the terminal status.
func (s *BookingService) Cancel(ctx context.Context, id, userID uint64, role string) error {
	var canceled *model.Booking
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		b, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.UserID != userID && !elevated(role) {
			return fmt.Errorf("booking %d: %w", id, repository.ErrForbidden)
		}
		if err := b.CanCancel(); err != nil {
			return fmt.Errorf("%s: %w", err.Error(), repository.ErrConflict)
		}
		if err := tx.UpdateStatus(ctx, id, model.StatusCanceled); err != nil {
			return err
		}
		b.Status = model.StatusCanceled
		canceled = b
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("booking: canceled %s (id %d)", canceled.CheckInCode, id)
	s.sched.Cancel(id)
	s.emit(ctx, queue.KeyBookingCanceled, canceled, "")
	return nil
}

// CheckIn activates a booking by its check-in code.  The grace period
// comes from policy (fail-open default); the state-machine guard
// applies the ongoing-booking exception.
func (s *BookingService) CheckIn(ctx context.Context, code string) (*model.Booking, error) {
	grace := s.policy.GracePeriod(ctx)
	now := s.now()

	var checked *model.Booking
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		b, err := tx.GetByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if err := b.CanCheckIn(now, grace); err != nil {
			return fmt.Errorf("%s: %w", err.Error(), repository.ErrConflict)
		}
		if err := tx.SetCheckedIn(ctx, b.ID, now); err != nil {
			return err
		}
		b.Status = model.StatusCheckedIn
		at := now
		b.CheckedInAt = &at
		checked = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("booking: check-in successful for %s (id %d)", checked.CheckInCode, checked.ID)
	s.emit(ctx, queue.KeyBookingCheckedIn, checked, "")
	return checked, nil
}

// Complete is re-entered by the scheduler when a booking's end time
// elapses (or by startup recovery finding it already elapsed).  It is
// idempotent: a missing or already-terminal booking is a no-op, and an
// end time still in the future re-arms the timer instead of
// transitioning.  CHECKED_IN completes; CONFIRMED (never checked in)
// becomes NO_SHOW.  When the resource has no other currently active
// booking a resource.freed event accompanies the terminal event.
func (s *BookingService) Complete(ctx context.Context, id uint64) error {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("booking: completion fire for unknown booking %d, skipping", id)
			return nil
		}
		return err
	}
	if b.Status.Terminal() {
		return nil
	}
	now := s.now()
	if b.EndTime.After(now) {
		// Fired early or the window moved concurrently; re-arm rather
		// than transition.
		s.sched.Schedule(id, b.EndTime)
		return nil
	}

	var completed *model.Booking
	var target model.Status
	var movedEnd time.Time
	err = s.store.InTx(ctx, func(tx StoreTx) error {
		cur, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// The outer read is unlocked; an update may have committed a
		// later end since.  The row-locked end time decides.
		if cur.EndTime.After(now) {
			movedEnd = cur.EndTime
			return nil
		}
		t, ok := cur.CompletionTarget()
		if !ok {
			return nil // lost the race to a cancel or the sweep
		}
		if err := tx.UpdateStatus(ctx, id, t); err != nil {
			return err
		}
		cur.Status = t
		completed, target = cur, t
		return nil
	})
	if err != nil {
		return err
	}
	if !movedEnd.IsZero() {
		s.sched.Schedule(id, movedEnd)
		return nil
	}
	if completed == nil {
		return nil
	}

	s.sched.Cancel(id)
	log.Printf("booking: %s (id %d) resolved to %s", completed.CheckInCode, id, target)

	key := queue.KeyBookingCompleted
	if target == model.StatusNoShow {
		key = queue.KeyBookingNoShow
	}
	s.emit(ctx, key, completed, "")

	occupied, err := s.store.HasOtherActiveAt(ctx, completed.ResourceID, id, now)
	if err != nil {
		log.Printf("booking: resource occupancy check for %d failed: %v", completed.ResourceID, err)
		return nil
	}
	if !occupied {
		s.emitFreed(ctx, completed.ResourceID, id)
	}
	return nil
}

// ProcessNoShows is the sweep pass: every CONFIRMED booking whose
// grace period elapsed without a check-in is transitioned to NO_SHOW.
// Each booking is handled in its own transaction so one failure does
// not abort the pass; the status re-check inside the transaction keeps
// the sweep from double-transitioning against a racing timer fire.
func (s *BookingService) ProcessNoShows(ctx context.Context) error {
	grace := s.policy.GracePeriod(ctx)
	deadline := s.now().Add(-grace)

	expired, err := s.store.ListExpiredUncheckedIn(ctx, deadline)
	if err != nil {
		return err
	}
	processed := 0
	for i := range expired {
		id := expired[i].ID

		var marked *model.Booking
		err := s.store.InTx(ctx, func(tx StoreTx) error {
			b, err := tx.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if b.Status != model.StatusConfirmed {
				return nil // checked in or resolved since the query
			}
			if err := tx.UpdateStatus(ctx, id, model.StatusNoShow); err != nil {
				return err
			}
			b.Status = model.StatusNoShow
			marked = b
			return nil
		})
		if err != nil {
			log.Printf("booking: no-show transition for %d failed: %v", id, err)
			continue
		}
		if marked == nil {
			continue
		}
		// Disarm only once the transition committed; a booking that got
		// checked in since the query keeps its completion timer.
		s.sched.Cancel(id)
		processed++
		log.Printf("booking: marked %s (id %d) as no-show", marked.CheckInCode, id)
		s.emit(ctx, queue.KeyBookingNoShow, marked, "")
	}
	if processed > 0 {
		log.Printf("booking: processed %d no-show bookings", processed)
	}
	return nil
}

// emit publishes a lifecycle event.  Failures are logged inside the
// publisher and deliberately ignored here: the state change has already
// committed.
func (s *BookingService) emit(ctx context.Context, key string, b *model.Booking, resourceName string) {
	_ = s.events.Publish(ctx, key, queue.NewBookingEvent(b, resourceName))
}

func (s *BookingService) emitFreed(ctx context.Context, resourceID, bookingID uint64) {
	_ = s.events.Publish(ctx, queue.KeyResourceFreed, queue.ResourceFreedEvent{
		ResourceID: resourceID,
		BookingID:  bookingID,
		EmittedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}
