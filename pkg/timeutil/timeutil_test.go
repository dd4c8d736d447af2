package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-06-16")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.June, 16), got)

	_, err = ParseDate("16/06/2025")
	assert.Error(t, err)
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, got)

	got, err = ParseTimeOfDay("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = ParseTimeOfDay("9:3")
	assert.Error(t, err)
}

func TestWeekdayIndex(t *testing.T) {
	assert.Equal(t, 0, WeekdayIndex(time.Monday))
	assert.Equal(t, 4, WeekdayIndex(time.Friday))
	assert.Equal(t, 6, WeekdayIndex(time.Sunday))
}

func TestMondayOf(t *testing.T) {
	// 2025-06-18 is a Wednesday
	assert.Equal(t, date(2025, time.June, 16), MondayOf(date(2025, time.June, 18)))
	// Monday maps to itself
	assert.Equal(t, date(2025, time.June, 16), MondayOf(date(2025, time.June, 16)))
	// Sunday belongs to the preceding Monday's week
	assert.Equal(t, date(2025, time.June, 16), MondayOf(date(2025, time.June, 22)))
}

func TestWeekStartOf(t *testing.T) {
	wed := date(2025, time.June, 18)

	assert.Equal(t, date(2025, time.June, 16), WeekStartOf(wed, 0))
	// Sunday-anchored weeks start on 2025-06-15
	assert.Equal(t, date(2025, time.June, 15), WeekStartOf(wed, 6))
	// A Thursday anchor from a Wednesday reaches back to last week
	assert.Equal(t, date(2025, time.June, 12), WeekStartOf(wed, 3))
}

func TestDayRangeSpansDSTTransition(t *testing.T) {
	chicago, err := LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 2025-03-09 loses an hour in Chicago
	start, end := DayRange(date(2025, time.March, 9), chicago)
	assert.Equal(t, 23*time.Hour, end.Sub(start))

	// 2025-11-02 gains one back
	start, end = DayRange(date(2025, time.November, 2), chicago)
	assert.Equal(t, 25*time.Hour, end.Sub(start))
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(8 * time.Hour)}

	t.Run("touching intervals do not overlap", func(t *testing.T) {
		b := Interval{Start: a.End, End: a.End.Add(4 * time.Hour)}
		assert.False(t, a.Overlaps(b))
		assert.False(t, b.Overlaps(a))
	})

	t.Run("contained interval overlaps", func(t *testing.T) {
		b := Interval{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
		assert.True(t, a.Overlaps(b))
		assert.True(t, b.Overlaps(a))
	})

	t.Run("disjoint intervals do not overlap", func(t *testing.T) {
		b := Interval{Start: a.End.Add(time.Hour), End: a.End.Add(2 * time.Hour)}
		assert.False(t, a.Overlaps(b))
		assert.False(t, b.Overlaps(a))
	})
}

func TestShiftIntervalOvernight(t *testing.T) {
	loc := time.UTC

	// 22:00-06:00 crosses midnight
	night := ShiftInterval(date(2025, time.June, 16), 22*60, 6*60, loc)
	assert.Equal(t, time.Date(2025, 6, 16, 22, 0, 0, 0, time.UTC), night.Start)
	assert.Equal(t, time.Date(2025, 6, 17, 6, 0, 0, 0, time.UTC), night.End)
	assert.Equal(t, 480, night.Minutes())

	// An overnight shift conflicts with an early shift on the next date
	morning := ShiftInterval(date(2025, time.June, 17), 4*60, 12*60, loc)
	assert.True(t, night.Overlaps(morning))
	assert.True(t, morning.Overlaps(night))

	// Equal start and end also reads as a 24 hour overnight span
	full := ShiftInterval(date(2025, time.June, 16), 9*60, 9*60, loc)
	assert.Equal(t, 24*60, full.Minutes())
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(date(2025, time.June, 16), date(2025, time.June, 16)))
	assert.Equal(t, 13, DaysBetween(date(2025, time.June, 16), date(2025, time.June, 29)))
	assert.Equal(t, -7, DaysBetween(date(2025, time.June, 16), date(2025, time.June, 9)))

	// Time-of-day components are ignored
	a := time.Date(2025, 6, 16, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 6, 17, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
}
