package service

import (
	"context"
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
)

// Store is the durable reservation store consumed by the lifecycle
// engine.  It reflects committed state only.  The MySQL implementation
// lives in store_mysql.go; tests substitute an in-memory fake.
type Store interface {
	// InTx runs fn inside a single transaction; fn's writes commit
	// together or not at all.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
	// LockResource serializes admission for one resource across
	// concurrent requests.  The release function must be called after
	// the surrounding transaction finishes.
	LockResource(ctx context.Context, resourceID uint64) (release func(), err error)

	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	ListByResource(ctx context.Context, resourceID uint64) ([]model.Booking, error)
	ListActiveResourceIDs(ctx context.Context, now time.Time) ([]uint64, error)
	ListExpiredUncheckedIn(ctx context.Context, graceDeadline time.Time) ([]model.Booking, error)
	HasOtherActiveAt(ctx context.Context, resourceID, excludeID uint64, now time.Time) (bool, error)
}

// StoreTx is the transactional slice of the store.  Row-locking reads
// guarantee the status observed is the status overwritten.
type StoreTx interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByIDForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*model.Booking, error)
	FindOverlapping(ctx context.Context, resourceID uint64, start, end time.Time, excludeID uint64) ([]model.Booking, error)
	CountActiveByUser(ctx context.Context, userID uint64) (int, error)
	UpdateWindow(ctx context.Context, id uint64, start, end time.Time) error
	UpdateStatus(ctx context.Context, id uint64, to model.Status) error
	SetCheckedIn(ctx context.Context, id uint64, at time.Time) error
}

// PolicyGateway validates prospective bookings and supplies the
// check-in grace period.  Implementations fail open.
type PolicyGateway interface {
	Validate(ctx context.Context, start, end time.Time, userID uint64, activeCount int) (valid bool, violations []string, err error)
	GracePeriod(ctx context.Context) time.Duration
}

// UserDirectory answers whether a user is barred from booking.
type UserDirectory interface {
	IsRestricted(ctx context.Context, userID uint64) (bool, error)
}

// ResourceCatalog resolves resource IDs to display names and rejects
// bookings against resources the catalog affirmatively does not know.
type ResourceCatalog interface {
	ResourceName(ctx context.Context, resourceID uint64) (string, error)
}

// EventPublisher emits lifecycle events.  Best effort: failures are
// logged by the implementation and never fail the primary operation.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// CompletionScheduler arms and disarms per-booking completion timers.
type CompletionScheduler interface {
	Schedule(bookingID uint64, endTime time.Time)
	Cancel(bookingID uint64)
}
