package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
)

// BookingRepo provides data access to the bookings table.  Mutating
// methods come in *Tx variants so the service layer can group the
// overlap check, the policy check and the write into a single
// transaction.  All timestamps are stored and compared in UTC; the DSN
// is opened with parseTime=true&loc=UTC so DATETIME columns scan
// directly into time.Time.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so the service layer can begin
// transactions spanning multiple repository calls.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, user_id, resource_id, start_time, end_time, status, check_in_code, checked_in_at, created_at, updated_at`

const mysqlTimeLayout = "2006-01-02 15:04:05"

// scanBooking reads one bookings row from any scanner (sql.Row or
// sql.Rows) into a model.Booking.
func scanBooking(scan func(dest ...interface{}) error) (*model.Booking, error) {
	var b model.Booking
	var checkedIn sql.NullTime
	if err := scan(
		&b.ID, &b.UserID, &b.ResourceID, &b.StartTime, &b.EndTime,
		&b.Status, &b.CheckInCode, &checkedIn, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if checkedIn.Valid {
		t := checkedIn.Time.UTC()
		b.CheckedInAt = &t
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

// LockResource acquires a named advisory lock scoped to the resource on
// a dedicated pooled connection.  The returned release function must be
// called once the surrounding transaction has committed or rolled back.
// Holding the lock across the overlap check and the insert serializes
// concurrent admissions for the same resource; without it two creates
// could both observe "no overlap" and both commit.
func (r *BookingRepo) LockResource(ctx context.Context, resourceID uint64) (release func(), err error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("booking.resource.%d", resourceID)
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 10)`, name).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("timed out acquiring lock for resource %d: %w", resourceID, ErrConflict)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, name)
		_ = conn.Close()
	}, nil
}

// CreateTx inserts a new booking within the scope of an existing
// transaction and queries the row back to populate the generated ID and
// the store-maintained timestamps.  The caller must commit or rollback.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, resource_id, start_time, end_time, status, check_in_code)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		b.UserID, b.ResourceID,
		b.StartTime.UTC().Format(mysqlTimeLayout), b.EndTime.UTC().Format(mysqlTimeLayout),
		string(b.Status), b.CheckInCode,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	sel := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	got, err := scanBooking(tx.QueryRowContext(ctx, sel, b.ID).Scan)
	if err != nil {
		return err
	}
	*b = *got
	return nil
}

// GetByID returns a single booking by primary key, or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return b, err
}

// GetByIDForUpdateTx returns a booking by primary key with a row lock
// held for the remainder of the transaction.  Mutation paths use it so
// the status they observe is the status they overwrite.
func (r *BookingRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return b, err
}

// GetByCodeForUpdateTx returns the booking carrying the given check-in
// code, row-locked for the remainder of the transaction.  Unknown codes
// map to ErrNotFound so handlers can reject an invalid code cleanly.
func (r *BookingRepo) GetByCodeForUpdateTx(ctx context.Context, tx *sql.Tx, code string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE check_in_code = ? FOR UPDATE`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, code).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check-in code: %w", ErrNotFound)
	}
	return b, err
}

// ListAll returns every booking ordered by creation time descending.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC`
	return r.list(ctx, q)
}

// ListByUser returns all bookings owned by the given user, newest
// first.  When no bookings exist an empty slice is returned.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, userID)
}

// ListByResource returns all bookings against the given resource,
// newest first.
func (r *BookingRepo) ListByResource(ctx context.Context, resourceID uint64) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE resource_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, resourceID)
}

// FindOverlappingTx returns bookings for the resource whose half-open
// windows intersect [start, end) and whose status still occupies the
// resource.  Two windows overlap iff each starts before the other ends.
// excludeID omits the booking being updated from the candidate set;
// pass zero on create.
func (r *BookingRepo) FindOverlappingTx(ctx context.Context, tx *sql.Tx, resourceID uint64, start, end time.Time, excludeID uint64) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE resource_id = ?
	        AND status IN ('PENDING','CONFIRMED','CHECKED_IN')
	        AND start_time < ? AND end_time > ?`
	args := []interface{}{resourceID, end.UTC().Format(mysqlTimeLayout), start.UTC().Format(mysqlTimeLayout)}
	if excludeID != 0 {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// CountActiveByUserTx returns how many CONFIRMED or CHECKED_IN bookings
// the user currently holds.  The count feeds policy validation.
func (r *BookingRepo) CountActiveByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM bookings WHERE user_id = ? AND status IN ('CONFIRMED','CHECKED_IN')`
	var n int
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListActiveResourceIDs returns the distinct resource IDs that have a
// CONFIRMED or CHECKED_IN booking whose window contains the given
// instant.
func (r *BookingRepo) ListActiveResourceIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	const q = `SELECT DISTINCT resource_id FROM bookings
	           WHERE status IN ('CONFIRMED','CHECKED_IN')
	             AND start_time <= ? AND end_time > ?
	           ORDER BY resource_id`
	ts := now.UTC().Format(mysqlTimeLayout)
	rows, err := r.db.QueryContext(ctx, q, ts, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasOtherActiveAt reports whether the resource has any booking other
// than excludeID whose window contains the instant and whose status is
// CONFIRMED or CHECKED_IN.  The completion path uses it to decide
// whether a resource-freed signal may be emitted.
func (r *BookingRepo) HasOtherActiveAt(ctx context.Context, resourceID, excludeID uint64, now time.Time) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM bookings
	           WHERE resource_id = ? AND id <> ?
	             AND status IN ('CONFIRMED','CHECKED_IN')
	             AND start_time <= ? AND end_time > ?)`
	ts := now.UTC().Format(mysqlTimeLayout)
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, resourceID, excludeID, ts, ts).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListExpiredUncheckedIn returns CONFIRMED bookings that were never
// checked in and whose start time is at or before the grace deadline
// (now minus the grace period).  The no-show sweep transitions each of
// them to NO_SHOW.
func (r *BookingRepo) ListExpiredUncheckedIn(ctx context.Context, graceDeadline time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE status = 'CONFIRMED' AND checked_in_at IS NULL AND start_time <= ?
	      ORDER BY start_time`
	return r.list(ctx, q, graceDeadline.UTC().Format(mysqlTimeLayout))
}

// ListActiveEndingAfter returns CONFIRMED and CHECKED_IN bookings whose
// end time lies in the future.  Startup recovery re-arms one completion
// timer per returned booking.
func (r *BookingRepo) ListActiveEndingAfter(ctx context.Context, now time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE status IN ('CONFIRMED','CHECKED_IN') AND end_time > ?
	      ORDER BY end_time`
	return r.list(ctx, q, now.UTC().Format(mysqlTimeLayout))
}

// UpdateWindowTx rewrites the booking's time window within a
// transaction.
func (r *BookingRepo) UpdateWindowTx(ctx context.Context, tx *sql.Tx, id uint64, start, end time.Time) error {
	const q = `UPDATE bookings SET start_time = ?, end_time = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		start.UTC().Format(mysqlTimeLayout), end.UTC().Format(mysqlTimeLayout), id)
	return err
}

// UpdateStatusTx sets the booking's status within a transaction.  The
// WHERE clause refuses to overwrite a terminal status so a racing
// sweep or timer fire degrades to a no-op; ErrConflict is returned when
// no row changed.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, to model.Status) error {
	const q = `UPDATE bookings SET status = ? WHERE id = ? AND status IN ('PENDING','CONFIRMED','CHECKED_IN')`
	result, err := tx.ExecContext(ctx, q, string(to), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d already terminal: %w", id, ErrConflict)
	}
	return nil
}

// SetCheckedInTx transitions the booking into CHECKED_IN and records
// the check-in instant.
func (r *BookingRepo) SetCheckedInTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	const q = `UPDATE bookings SET status = 'CHECKED_IN', checked_in_at = ? WHERE id = ? AND status = 'CONFIRMED'`
	result, err := tx.ExecContext(ctx, q, at.UTC().Format(mysqlTimeLayout), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d not in CONFIRMED status: %w", id, ErrConflict)
	}
	return nil
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// NewCheckInCode generates the short human-presentable code handed to
// the booking holder: "BK-" followed by eight uppercase hex characters
// from crypto/rand.  Uniqueness is enforced by the check_in_code unique
// index.
func NewCheckInCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "BK-" + strings.ToUpper(fmt.Sprintf("%x", buf)), nil
}
