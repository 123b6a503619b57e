package domain

import (
	"fmt"
	"time"
)

const dayFormat = "2006-01-02"

// Day is a single calendar date with day precision, anchored to UTC.
type Day struct {
	t time.Time
}

// ParseDay parses a YYYY-MM-DD day key.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(dayFormat, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Day{t: t}, nil
}

// Today returns the current calendar day in UTC.
func Today() Day {
	now := time.Now().UTC()
	return Day{t: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)}
}

// Key returns the machine-sortable YYYY-MM-DD form.
func (d Day) Key() string { return d.t.Format(dayFormat) }

// Label returns a short human-readable form, e.g. "Jan 2".
func (d Day) Label() string { return d.t.Format("Jan 2") }

// AddDays returns the day n calendar days after d (before, when n is negative).
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// Before reports whether d falls before o.
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

// DaysBetween returns the number of whole days from start to end. The result
// is negative when end precedes start. Days are UTC midnights, so the delta in
// seconds is always an exact multiple of a day; arithmetic on seconds keeps
// multi-century spans exact where a time.Duration would saturate.
func DaysBetween(start, end Day) int {
	return int((end.t.Unix() - start.t.Unix()) / (24 * 60 * 60))
}
