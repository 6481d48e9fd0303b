package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LibraryBookingSystem/booking-service/internal/model"
)

type recordingCompleter struct {
	mu    sync.Mutex
	ids   []uint64
	fired chan uint64
}

func newRecordingCompleter() *recordingCompleter {
	return &recordingCompleter{fired: make(chan uint64, 16)}
}

func (r *recordingCompleter) Complete(_ context.Context, id uint64) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	r.fired <- id
	return nil
}

func (r *recordingCompleter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func waitFire(t *testing.T, r *recordingCompleter) uint64 {
	t.Helper()
	select {
	case id := <-r.fired:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion fire")
		return 0
	}
}

func TestScheduleFiresAtEnd(t *testing.T) {
	c := NewCompletion(2, nil)
	defer c.Close()
	rec := newRecordingCompleter()
	c.Start(rec)

	c.Schedule(42, time.Now().Add(30*time.Millisecond))
	assert.Equal(t, 1, c.Pending())

	require.Equal(t, uint64(42), waitFire(t, rec))

	// Fired timers leave no entry behind.
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSchedulePastEndFiresImmediately(t *testing.T) {
	c := NewCompletion(1, nil)
	defer c.Close()
	rec := newRecordingCompleter()
	c.Start(rec)

	c.Schedule(7, time.Now().Add(-time.Hour))
	require.Equal(t, uint64(7), waitFire(t, rec))
	assert.Equal(t, 0, c.Pending())
}

func TestCancelDisarmsTimer(t *testing.T) {
	c := NewCompletion(1, nil)
	defer c.Close()
	rec := newRecordingCompleter()
	c.Start(rec)

	c.Schedule(9, time.Now().Add(40*time.Millisecond))
	c.Cancel(9)
	assert.Equal(t, 0, c.Pending())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, rec.count(), "canceled timer must not fire")

	// Cancel of an unknown id is a no-op.
	c.Cancel(12345)
}

func TestScheduleReplacesExistingTimer(t *testing.T) {
	c := NewCompletion(1, nil)
	defer c.Close()
	rec := newRecordingCompleter()
	c.Start(rec)

	c.Schedule(5, time.Now().Add(10*time.Minute))
	c.Schedule(5, time.Now().Add(25*time.Millisecond))
	assert.Equal(t, 1, c.Pending(), "re-arming must replace, not duplicate")

	require.Equal(t, uint64(5), waitFire(t, rec))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "only the replacement timer may fire")
}

type staticRecovery struct {
	bookings []model.Booking
}

func (s staticRecovery) ListActiveEndingAfter(context.Context, time.Time) ([]model.Booking, error) {
	return s.bookings, nil
}

func TestRecoverOnStartup(t *testing.T) {
	c := NewCompletion(2, nil)
	defer c.Close()
	rec := newRecordingCompleter()
	c.Start(rec)

	src := staticRecovery{bookings: []model.Booking{
		{ID: 1, EndTime: time.Now().Add(time.Hour)},
		{ID: 2, EndTime: time.Now().Add(2 * time.Hour)},
		{ID: 3, EndTime: time.Now().Add(-time.Minute)}, // elapsed while down
	}}
	require.NoError(t, c.RecoverOnStartup(context.Background(), src))

	// The elapsed booking fires immediately; the future two stay armed.
	require.Equal(t, uint64(3), waitFire(t, rec))
	assert.Equal(t, 2, c.Pending())
}

func TestFireWithoutCompleterIsDropped(t *testing.T) {
	c := NewCompletion(1, nil)
	defer c.Close()

	// No Start call: the fire must be dropped without panicking.
	c.Schedule(11, time.Now().Add(-time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}
