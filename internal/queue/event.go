// Package queue defines message payloads exchanged over the message
// broker and the RabbitMQ publisher and consumer that move them.
package queue

import (
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
)

// Exchange and routing keys for booking lifecycle events.  All keys
// route through the same topic exchange so consumers can bind to
// "booking.#" for the full stream or to one key for a single event
// type.
const (
	BookingExchange = "booking.events"

	KeyBookingCreated   = "booking.created"
	KeyBookingUpdated   = "booking.updated"
	KeyBookingCanceled  = "booking.canceled"
	KeyBookingCheckedIn = "booking.checked_in"
	KeyBookingCompleted = "booking.completed"
	KeyBookingNoShow    = "booking.no_show"
	KeyResourceFreed    = "resource.freed"
)

// BookingEvent is the snapshot published for every lifecycle
// transition.  It carries enough information for downstream consumers
// to log, notify, or trigger analytics without querying the primary
// database.
type BookingEvent struct {
	BookingID    uint64  `json:"booking_id"`
	UserID       uint64  `json:"user_id"`
	ResourceID   uint64  `json:"resource_id"`
	ResourceName string  `json:"resource_name,omitempty"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Status       string  `json:"status"`
	CheckInCode  string  `json:"check_in_code"`
	CheckedInAt  *string `json:"checked_in_at,omitempty"`
	EmittedAt    string  `json:"emitted_at"`
}

// ResourceFreedEvent announces that a resource has no currently active
// booking following a completion or no-show.  It is only emitted when
// no back-to-back booking immediately occupies the resource.
type ResourceFreedEvent struct {
	ResourceID uint64 `json:"resource_id"`
	BookingID  uint64 `json:"booking_id"`
	EmittedAt  string `json:"emitted_at"`
}

// NewBookingEvent builds the snapshot for a booking, stamping the
// emission time in UTC.
func NewBookingEvent(b *model.Booking, resourceName string) BookingEvent {
	ev := BookingEvent{
		BookingID:    b.ID,
		UserID:       b.UserID,
		ResourceID:   b.ResourceID,
		ResourceName: resourceName,
		StartTime:    b.StartTime.UTC().Format(time.RFC3339),
		EndTime:      b.EndTime.UTC().Format(time.RFC3339),
		Status:       string(b.Status),
		CheckInCode:  b.CheckInCode,
		EmittedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if b.CheckedInAt != nil {
		s := b.CheckedInAt.UTC().Format(time.RFC3339)
		ev.CheckedInAt = &s
	}
	return ev
}
