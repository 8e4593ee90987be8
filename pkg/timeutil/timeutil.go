// Package timeutil provides calendar-date utilities for streak tracking.
// Streaks are counted in whole calendar days in a configured timezone, so
// everything here works on dates with the time of day truncated away.
package timeutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultLocation is used when no timezone is configured.
// Kazakhstan abolished DST in 2005, so a fixed zone is safe.
var DefaultLocation = time.FixedZone("Asia/Almaty", 5*60*60)

// Layout formats.
const (
	FormatDate     = "2006-01-02"
	FormatDateTime = time.RFC3339
)

// Date is a calendar date without time of day or location.
// The zero value represents "no date".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a normalized Date (e.g. Feb 30 becomes Mar 1 or 2).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = DefaultLocation
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(FormatDate, value)
	if err != nil {
		return Date{}, fmt.Errorf("timeutil: invalid date %q: %w", value, err)
	}
	return DateOf(t, time.UTC), nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null for the zero Date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultLocation
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// UTC returns midnight of d in UTC. Used as the storage representation.
func (d Date) UTC() time.Time {
	return d.In(time.UTC)
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.UTC().AddDate(0, 0, n), time.UTC)
}

// Equal reports whether d and other are the same calendar date.
func (d Date) Equal(other Date) bool {
	return d == other
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.UTC().Before(other.UTC())
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.UTC().After(other.UTC())
}

// Streak-related utilities.

// DaysBetween returns the signed number of calendar days from a to b.
// Computed on UTC midnights, so DST transitions never produce 23h or 25h days.
func DaysBetween(a, b Date) int {
	return int(b.UTC().Sub(a.UTC()).Hours() / 24)
}

// IsConsecutiveDay reports whether next is exactly one day after prev.
func IsConsecutiveDay(prev, next Date) bool {
	return DaysBetween(prev, next) == 1
}

// Clock supplies the current time. Injected so tests can pin "today".
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time { return c.At }

// Today returns the calendar date of clock.Now() in loc.
func Today(clock Clock, loc *time.Location) Date {
	if clock == nil {
		clock = SystemClock{}
	}
	return DateOf(clock.Now(), loc)
}

// LoadLocation resolves a timezone name, falling back to DefaultLocation.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return DefaultLocation
	}
	return loc
}
