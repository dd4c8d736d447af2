// Package timeutil holds the calendar arithmetic shared by the time
// clock, scheduling and payroll packages. All wall-clock inputs
// (shift dates, period bounds) are interpreted in a company's IANA
// time zone and converted to UTC instants at the edges.
package timeutil

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"
	// TimeOfDayLayout is the wire format for times of day.
	TimeOfDayLayout = "15:04"
)

// LoadLocation resolves an IANA time zone name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("time zone must not be empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight
// UTC on that date; callers needing a zoned instant use DayStart.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseTimeOfDay parses an HH:MM time of day into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	t, err := time.Parse(TimeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayStart returns midnight of the given calendar date in loc.
func DayStart(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// DayRange returns the UTC instants [start, end) covering the given
// calendar date in loc. End is the following local midnight, so DST
// transition days are 23 or 25 hours long rather than a fixed 24.
func DayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	start := DayStart(date, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// WeekdayIndex maps time.Weekday to the 0=Monday .. 6=Sunday indexing
// used by scheduling templates and week-start settings.
func WeekdayIndex(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}

// MondayOf returns the Monday of the week containing date.
func MondayOf(date time.Time) time.Time {
	return date.AddDate(0, 0, -WeekdayIndex(date.Weekday()))
}

// WeekStartOf returns the start of the week containing date, where
// weekStartDay is 0=Monday .. 6=Sunday.
func WeekStartOf(date time.Time, weekStartDay int) time.Time {
	offset := WeekdayIndex(date.Weekday()) - weekStartDay
	if offset < 0 {
		offset += 7
	}
	return date.AddDate(0, 0, -offset)
}

// Interval is a half-open UTC time span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Minutes returns the interval length in whole minutes.
func (a Interval) Minutes() int {
	return int(a.End.Sub(a.Start) / time.Minute)
}

// ShiftInterval converts a shift's calendar date plus HH:MM start/end
// times into an absolute UTC interval in loc. An end at or before the
// start means the shift crosses midnight and ends the next day.
func ShiftInterval(date time.Time, startMinutes, endMinutes int, loc *time.Location) Interval {
	day := DayStart(date, loc)
	start := day.Add(time.Duration(startMinutes) * time.Minute)
	end := day.Add(time.Duration(endMinutes) * time.Minute)
	if endMinutes <= startMinutes {
		end = end.AddDate(0, 0, 1)
	}
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// DaysBetween returns the number of whole calendar days from a to b,
// ignoring the time-of-day components.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
