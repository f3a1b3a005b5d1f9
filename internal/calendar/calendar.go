// Package calendar holds civil-date helpers shared by absences and appointments.
//
// Date ranges are closed on both ends: [Start, End] covers every instant from
// Start 00:00 up to, but excluding, End+1 00:00 in the clinic location.
package calendar

import (
	"fmt"
	"time"
)

// DateOf truncates t to its civil date in loc, returned as UTC midnight.
func DateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// DateRange is an inclusive range of civil dates stored as UTC midnights.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: DateOf(start, time.UTC), End: DateOf(end, time.UTC)}
}

// Valid reports End >= Start.
func (r DateRange) Valid() bool {
	return !r.End.Before(r.Start)
}

// Bounds returns the half-open instant interval [from, to) the range covers in loc.
func (r DateRange) Bounds(loc *time.Location) (from, to time.Time) {
	from = time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, loc)
	next := r.End.AddDate(0, 0, 1)
	to = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
	return from, to
}

// Contains reports whether instant t falls on one of the range's dates in loc.
func (r DateRange) Contains(t time.Time, loc *time.Location) bool {
	from, to := r.Bounds(loc)
	return !t.Before(from) && t.Before(to)
}

// ContainsDate reports whether civil date d is within the range.
func (r DateRange) ContainsDate(d time.Time) bool {
	d = DateOf(d, time.UTC)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}
