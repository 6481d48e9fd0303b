package model

import (
	"fmt"
	"time"
)

// Status enumerates the lifecycle states of a booking.  A booking is
// created directly in CONFIRMED; PENDING exists for a future approval
// step but is never assigned today.  COMPLETED, CANCELED and NO_SHOW
// are terminal: once a booking reaches one of them no further
// transition is applied.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCheckedIn Status = "CHECKED_IN"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
	StatusNoShow    Status = "NO_SHOW"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

// Active reports whether the booking still occupies its resource for
// the purposes of overlap checks (PENDING, CONFIRMED or CHECKED_IN).
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCheckedIn
}

// Booking represents a user's claim on a resource for a time window.
// Times are stored and compared in UTC.  The check-in code is assigned
// once at creation and never changes.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – user who owns the booking.
//  ResourceID  – resource (room, equipment) being booked.
//  StartTime   – beginning of the window (inclusive), UTC.
//  EndTime     – end of the window (exclusive), UTC.
//  Status      – lifecycle state, see Status.
//  CheckInCode – short unique code presented at check-in.
//  CheckedInAt – set on transition into CHECKED_IN, nil otherwise.
//  CreatedAt   – creation timestamp, maintained by the store.
//  UpdatedAt   – last mutation timestamp, maintained by the store.
type Booking struct {
	ID          uint64     `json:"id"`
	UserID      uint64     `json:"user_id"`
	ResourceID  uint64     `json:"resource_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Status      Status     `json:"status"`
	CheckInCode string     `json:"check_in_code"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Overlaps reports whether two half-open windows [s1,e1) and [s2,e2)
// intersect: s1 < e2 && s2 < e1.  Back-to-back windows that merely
// touch do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// TransitionError reports a rejected lifecycle transition.  Reason is a
// short machine-friendly tag; the Error text carries the human-readable
// explanation.
type TransitionError struct {
	Reason  string
	Message string
}

func (e *TransitionError) Error() string { return e.Message }

// Transition rejection reasons.
const (
	ReasonWrongStatus  = "wrong_status"
	ReasonTooEarly     = "too_early"
	ReasonGraceExpired = "grace_expired"
	ReasonEnded        = "ended"
)

// CanCancel reports whether the booking may be canceled.  Cancellation
// is permitted from every non-terminal state, including CHECKED_IN
// (a user may abandon an ongoing booking).
func (b *Booking) CanCancel() error {
	if b.Status.Terminal() {
		return &TransitionError{
			Reason:  ReasonWrongStatus,
			Message: fmt.Sprintf("booking is already %s and cannot be canceled", b.Status),
		}
	}
	return nil
}

// CanUpdate reports whether the booking's window may be changed.  Only
// CONFIRMED bookings are mutable; a checked-in or terminal booking keeps
// its window.
func (b *Booking) CanUpdate() error {
	if b.Status != StatusConfirmed {
		return &TransitionError{
			Reason:  ReasonWrongStatus,
			Message: fmt.Sprintf("only confirmed bookings can be modified, current status: %s", b.Status),
		}
	}
	return nil
}

// CanCheckIn validates a check-in attempt at instant now given the
// policy grace period.  Check-in requires CONFIRMED status and
// now >= StartTime.  After StartTime+grace the attempt is rejected
// unless now still falls within [StartTime, EndTime] — an ongoing
// booking remains claimable right up to its end.  Once EndTime has
// passed check-in is always rejected.
func (b *Booking) CanCheckIn(now time.Time, grace time.Duration) error {
	if b.Status != StatusConfirmed {
		return &TransitionError{
			Reason:  ReasonWrongStatus,
			Message: fmt.Sprintf("booking is not in CONFIRMED status, current status: %s", b.Status),
		}
	}
	if now.Before(b.StartTime) {
		return &TransitionError{
			Reason:  ReasonTooEarly,
			Message: fmt.Sprintf("check-in is too early, booking starts at %s", b.StartTime.UTC().Format(time.RFC3339)),
		}
	}
	graceEnd := b.StartTime.Add(grace)
	withinGrace := !now.After(graceEnd)
	ongoing := !now.After(b.EndTime)
	if !withinGrace && !ongoing {
		return &TransitionError{
			Reason:  ReasonGraceExpired,
			Message: fmt.Sprintf("check-in window has expired, grace period ended at %s", graceEnd.UTC().Format(time.RFC3339)),
		}
	}
	// The ongoing-booking exception keeps a booking claimable past its
	// grace deadline while the window is still running, but never past
	// its end.
	if now.After(b.EndTime) {
		return &TransitionError{
			Reason:  ReasonEnded,
			Message: fmt.Sprintf("booking already ended at %s", b.EndTime.UTC().Format(time.RFC3339)),
		}
	}
	return nil
}

// CompletionTarget returns the terminal status a completion fire should
// apply: COMPLETED when the holder checked in, NO_SHOW when they never
// did.  ok is false when the booking is already terminal and the fire
// must be a no-op.
func (b *Booking) CompletionTarget() (Status, bool) {
	switch b.Status {
	case StatusCheckedIn:
		return StatusCompleted, true
	case StatusConfirmed, StatusPending:
		return StatusNoShow, true
	default:
		return b.Status, false
	}
}
