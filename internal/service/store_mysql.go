package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
	"github.com/LibraryBookingSystem/booking-service/internal/repository"
)

// SQLStore adapts the MySQL booking repository to the engine's Store
// contract, mapping InTx onto database/sql transactions.
type SQLStore struct {
	repo *repository.BookingRepo
}

// NewSQLStore wraps a BookingRepo.
func NewSQLStore(repo *repository.BookingRepo) *SQLStore { return &SQLStore{repo: repo} }

// InTx begins a transaction, runs fn against it, and commits when fn
// returns nil.  Any error from fn rolls the transaction back and is
// returned unchanged so sentinel comparisons keep working.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlStoreTx{repo: s.repo, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) LockResource(ctx context.Context, resourceID uint64) (func(), error) {
	return s.repo.LockResource(ctx, resourceID)
}

func (s *SQLStore) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SQLStore) ListAll(ctx context.Context) ([]model.Booking, error) {
	return s.repo.ListAll(ctx)
}

func (s *SQLStore) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *SQLStore) ListByResource(ctx context.Context, resourceID uint64) ([]model.Booking, error) {
	return s.repo.ListByResource(ctx, resourceID)
}

func (s *SQLStore) ListActiveResourceIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	return s.repo.ListActiveResourceIDs(ctx, now)
}

func (s *SQLStore) ListExpiredUncheckedIn(ctx context.Context, graceDeadline time.Time) ([]model.Booking, error) {
	return s.repo.ListExpiredUncheckedIn(ctx, graceDeadline)
}

func (s *SQLStore) HasOtherActiveAt(ctx context.Context, resourceID, excludeID uint64, now time.Time) (bool, error) {
	return s.repo.HasOtherActiveAt(ctx, resourceID, excludeID, now)
}

// ListActiveEndingAfter satisfies the scheduler's RecoverySource so the
// same store handle drives startup recovery.
func (s *SQLStore) ListActiveEndingAfter(ctx context.Context, now time.Time) ([]model.Booking, error) {
	return s.repo.ListActiveEndingAfter(ctx, now)
}

type sqlStoreTx struct {
	repo *repository.BookingRepo
	tx   *sql.Tx
}

func (t *sqlStoreTx) Create(ctx context.Context, b *model.Booking) error {
	return t.repo.CreateTx(ctx, t.tx, b)
}

func (t *sqlStoreTx) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	return t.repo.GetByIDForUpdateTx(ctx, t.tx, id)
}

func (t *sqlStoreTx) GetByCodeForUpdate(ctx context.Context, code string) (*model.Booking, error) {
	return t.repo.GetByCodeForUpdateTx(ctx, t.tx, code)
}

func (t *sqlStoreTx) FindOverlapping(ctx context.Context, resourceID uint64, start, end time.Time, excludeID uint64) ([]model.Booking, error) {
	return t.repo.FindOverlappingTx(ctx, t.tx, resourceID, start, end, excludeID)
}

func (t *sqlStoreTx) CountActiveByUser(ctx context.Context, userID uint64) (int, error) {
	return t.repo.CountActiveByUserTx(ctx, t.tx, userID)
}

func (t *sqlStoreTx) UpdateWindow(ctx context.Context, id uint64, start, end time.Time) error {
	return t.repo.UpdateWindowTx(ctx, t.tx, id, start, end)
}

func (t *sqlStoreTx) UpdateStatus(ctx context.Context, id uint64, to model.Status) error {
	return t.repo.UpdateStatusTx(ctx, t.tx, id, to)
}

func (t *sqlStoreTx) SetCheckedIn(ctx context.Context, id uint64, at time.Time) error {
	return t.repo.SetCheckedInTx(ctx, t.tx, id, at)
}
