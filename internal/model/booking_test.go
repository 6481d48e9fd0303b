package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"identical windows", ts(10, 0), ts(11, 0), ts(10, 0), ts(11, 0), true},
		{"partial overlap at start", ts(10, 0), ts(11, 0), ts(10, 30), ts(11, 30), true},
		{"partial overlap at end", ts(10, 30), ts(11, 30), ts(10, 0), ts(11, 0), true},
		{"fully contained", ts(10, 0), ts(12, 0), ts(10, 30), ts(11, 0), true},
		{"back to back, first ends as second starts", ts(10, 0), ts(11, 0), ts(11, 0), ts(12, 0), false},
		{"back to back, reversed", ts(11, 0), ts(12, 0), ts(10, 0), ts(11, 0), false},
		{"disjoint", ts(8, 0), ts(9, 0), ts(10, 0), ts(11, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.s1, tc.e1, tc.s2, tc.e2))
			assert.Equal(t, tc.want, Overlaps(tc.s2, tc.e2, tc.s1, tc.e1), "overlap must be symmetric")
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusCheckedIn.Terminal())
	assert.False(t, StatusPending.Terminal())

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.True(t, StatusCheckedIn.Active())
	assert.False(t, StatusCompleted.Active())
	assert.False(t, StatusCanceled.Active())
	assert.False(t, StatusNoShow.Active())
}

func TestCanCancel(t *testing.T) {
	for _, st := range []Status{StatusPending, StatusConfirmed, StatusCheckedIn} {
		b := &Booking{Status: st}
		assert.NoError(t, b.CanCancel(), "cancel from %s", st)
	}
	for _, st := range []Status{StatusCompleted, StatusCanceled, StatusNoShow} {
		b := &Booking{Status: st}
		err := b.CanCancel()
		require.Error(t, err, "cancel from %s", st)
		var terr *TransitionError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, ReasonWrongStatus, terr.Reason)
	}
}

func TestCanUpdate(t *testing.T) {
	assert.NoError(t, (&Booking{Status: StatusConfirmed}).CanUpdate())
	for _, st := range []Status{StatusPending, StatusCheckedIn, StatusCompleted, StatusCanceled, StatusNoShow} {
		err := (&Booking{Status: st}).CanUpdate()
		require.Error(t, err, "update from %s", st)
	}
}

func TestCanCheckIn(t *testing.T) {
	grace := 15 * time.Minute
	start := ts(10, 0)
	end := ts(12, 0)
	b := func(st Status) *Booking {
		return &Booking{Status: st, StartTime: start, EndTime: end}
	}

	cases := []struct {
		name       string
		booking    *Booking
		now        time.Time
		wantReason string
	}{
		{"before start", b(StatusConfirmed), ts(9, 59), ReasonTooEarly},
		{"exactly at start", b(StatusConfirmed), ts(10, 0), ""},
		{"within grace", b(StatusConfirmed), ts(10, 14), ""},
		{"exactly at grace deadline", b(StatusConfirmed), ts(10, 15), ""},
		{"past grace but ongoing", b(StatusConfirmed), ts(10, 16), ""},
		{"past grace, near end but ongoing", b(StatusConfirmed), ts(11, 59), ""},
		{"after end", b(StatusConfirmed), ts(12, 1), ReasonGraceExpired},
		{"already checked in", b(StatusCheckedIn), ts(10, 5), ReasonWrongStatus},
		{"canceled", b(StatusCanceled), ts(10, 5), ReasonWrongStatus},
		{"no-show", b(StatusNoShow), ts(10, 5), ReasonWrongStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.booking.CanCheckIn(tc.now, grace)
			if tc.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var terr *TransitionError
			require.Error(t, err)
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tc.wantReason, terr.Reason)
		})
	}
}

// A short booking that ends before its grace deadline: the attempt past
// the end must be rejected as ended, not grace_expired.
func TestCanCheckInEndedWithinGrace(t *testing.T) {
	b := &Booking{Status: StatusConfirmed, StartTime: ts(10, 0), EndTime: ts(10, 10)}
	err := b.CanCheckIn(ts(10, 12), 15*time.Minute)
	var terr *TransitionError
	require.Error(t, err)
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ReasonEnded, terr.Reason)
}

func TestCompletionTarget(t *testing.T) {
	cases := []struct {
		from   Status
		target Status
		ok     bool
	}{
		{StatusCheckedIn, StatusCompleted, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusPending, StatusNoShow, true},
		{StatusCompleted, StatusCompleted, false},
		{StatusCanceled, StatusCanceled, false},
		{StatusNoShow, StatusNoShow, false},
	}
	for _, tc := range cases {
		target, ok := (&Booking{Status: tc.from}).CompletionTarget()
		assert.Equal(t, tc.ok, ok, "from %s", tc.from)
		if ok {
			assert.Equal(t, tc.target, target, "from %s", tc.from)
		}
	}
}
