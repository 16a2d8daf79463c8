package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venueattend/internal/model"
)

var day = model.Date{Year: 2026, Month: time.June, Day: 6}

func record(member, location string, d model.Date, clock string, status model.Status) *model.Attendance {
	return &model.Attendance{
		MemberID:   member,
		LocationID: location,
		Date:       d,
		CheckIn:    model.MustTimeOfDay(clock).On(d, time.UTC),
		Method:     model.MethodPIN,
		Status:     status,
	}
}

func TestMemoryInsertRejectsDuplicateSlot(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	first := record("m1", "hall", day, "08:00", model.StatusOnTime)
	require.NoError(t, st.Insert(ctx, first))

	err := st.Insert(ctx, record("m1", "hall", day, "09:00", model.StatusVeryLate))
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	require.NotNil(t, dup.Existing)
	assert.Equal(t, first.ID, dup.Existing.ID)
	assert.True(t, errors.Is(err, model.ErrConflict))

	// Other location, other day and other member are independent slots.
	require.NoError(t, st.Insert(ctx, record("m1", "square", day, "09:00", model.StatusLate)))
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day.AddDays(1), "09:00", model.StatusLate)))
	require.NoError(t, st.Insert(ctx, record("m2", "hall", day, "09:00", model.StatusLate)))

	got, err := st.Existing(ctx, "m1", "hall", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusOnTime, got.Status)

	got, err = st.Existing(ctx, "m3", "hall", day)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryInsertConcurrentSameSlot(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	const goroutines = 50

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		dups     atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Insert(ctx, record("m1", "hall", day, "08:00", model.StatusOnTime))
			var dup *DuplicateError
			switch {
			case err == nil:
				inserted.Add(1)
			case errors.As(err, &dup):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
	assert.Equal(t, int32(goroutines-1), dups.Load())
	n, err := st.Count(ctx, Filter{MemberID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckOutOnce(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	out := time.Date(2026, time.June, 6, 15, 0, 0, 0, time.UTC)
	l := New(st, WithClock(func() time.Time { return out }))

	rec := record("m1", "hall", day, "08:00", model.StatusOnTime)
	require.NoError(t, st.Insert(ctx, rec))

	got, err := l.CheckOut(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CheckOut)
	assert.True(t, got.CheckOut.Equal(out))

	_, err = l.CheckOut(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrAlreadyCheckedOut)

	_, err = l.CheckOut(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAnnotate(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	l := New(st)
	rec := record("m1", "hall", day, "08:00", model.StatusOnTime)
	require.NoError(t, st.Insert(ctx, rec))

	got, err := l.Annotate(ctx, rec.ID, true, "  checked id card ")
	require.NoError(t, err)
	assert.True(t, got.VerifiedByAdmin)
	assert.Equal(t, "checked id card", got.AdminNotes)
	assert.Equal(t, model.StatusOnTime, got.Status, "annotation leaves the check-in untouched")

	_, err = l.Annotate(ctx, "missing", true, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestQueryFilterAndPaging(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	l := New(st)
	for i := 0; i < 5; i++ {
		rec := record(fmt.Sprintf("m%d", i), "hall", day, fmt.Sprintf("08:0%d", i), model.StatusOnTime)
		if i >= 3 {
			rec.Status = model.StatusLate
		}
		require.NoError(t, st.Insert(ctx, rec))
	}
	require.NoError(t, st.Insert(ctx, record("m0", "hall", day.AddDays(-7), "08:00", model.StatusOnTime)))

	all, err := l.Query(ctx, Filter{LocationID: "hall", From: day, To: day})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m4", all[0].MemberID, "newest check-in first")

	page, err := l.Query(ctx, Filter{LocationID: "hall", From: day, To: day, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m2", page[0].MemberID)

	late, err := l.Query(ctx, Filter{Status: model.StatusLate})
	require.NoError(t, err)
	assert.Len(t, late, 2)

	_, err = l.Query(ctx, Filter{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestHistoryAndMemberSummary(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	l := New(st)
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day, "08:00", model.StatusOnTime)))
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day.AddDays(-7), "08:15", model.StatusLate)))
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day.AddDays(-14), "07:55", model.StatusOnTime)))
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day.AddDays(-60), "07:55", model.StatusOnTime)))

	hist, err := l.History(ctx, "m1", day, 30)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, day, hist[0].Date)

	sum, err := l.MemberSummary(ctx, "m1", day.AddDays(-30), day)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.OnTime)
	assert.Equal(t, 1, sum.Late)
	assert.InDelta(t, 66.67, sum.PunctualityRate, 0.01)

	_, err = l.MemberSummary(ctx, "m1", day, day.AddDays(-1))
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestLocationSummary(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	l := New(st)
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day, "08:00", model.StatusOnTime)))
	require.NoError(t, st.Insert(ctx, record("m2", "hall", day, "08:20", model.StatusLate)))
	veryLate := record("m3", "hall", day, "09:00", model.StatusVeryLate)
	veryLate.Method = model.MethodFacePIN
	require.NoError(t, st.Insert(ctx, veryLate))
	require.NoError(t, st.Insert(ctx, record("m4", "square", day, "08:00", model.StatusOnTime)))

	capacity := 10
	sum, err := l.LocationSummary(ctx, &model.Location{ID: "hall", Capacity: &capacity}, day, 12)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.OnTime)
	assert.Equal(t, 1, sum.Late)
	assert.Equal(t, 1, sum.VeryLate)
	assert.Equal(t, 2, sum.ByMethod[model.MethodPIN])
	assert.Equal(t, 1, sum.ByMethod[model.MethodFacePIN])
	assert.InDelta(t, 25.0, sum.AttendanceRate, 0.001)
	require.NotNil(t, sum.Utilisation)
	assert.InDelta(t, 30.0, *sum.Utilisation, 0.001)

	empty, err := l.LocationSummary(ctx, &model.Location{ID: "nowhere"}, day, 0)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AttendanceRate)
	assert.Nil(t, empty.Utilisation)
}

func TestHasAttendance(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, record("m1", "hall", day, "08:00", model.StatusOnTime)))

	has, err := st.HasAttendance(ctx, "hall", day)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = st.HasAttendance(ctx, "hall", day.AddDays(1))
	require.NoError(t, err)
	assert.False(t, has)
}
