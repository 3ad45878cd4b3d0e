// Package dates handles the calendar-date strings used throughout medtab.
// Dates are YYYY-MM-DD strings, which compare chronologically as plain
// strings. Validity intervals use the min/max sentinels for "unbounded".
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Layout = "2006-01-02"

	// Min and Max are the sentinel dates standing for unbounded past and
	// unbounded future in validity intervals and end dates.
	Min = "0001-01-01"
	Max = "9999-12-31"
)

// Parse parses a YYYY-MM-DD date string at midnight UTC.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// Format renders t as a YYYY-MM-DD string, dropping the time of day.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Valid reports whether s is a well-formed date string.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// AddDays returns date shifted by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(t.AddDate(0, 0, n)), nil
}

// DaysBetween returns the whole number of days from 'from' to 'to';
// negative when 'to' precedes 'from'.
func DaysBetween(from, to string) (int, error) {
	a, err := Parse(from)
	if err != nil {
		return 0, err
	}
	b, err := Parse(to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}

// Weekday returns the weekday of date with Sunday as 0.
func Weekday(date string) (int, error) {
	t, err := Parse(date)
	if err != nil {
		return 0, err
	}
	return int(t.Weekday()), nil
}

// ClockMinutes parses an HH:MM clock time into minutes since midnight.
func ClockMinutes(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", clock)
	}
	return h*60 + m, nil
}

// At combines a date string and an HH:MM clock time into an instant in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := Parse(date)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := ClockMinutes(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), mins/60, mins%60, 0, 0, loc), nil
}

// Today returns now's calendar date in now's location.
func Today(now time.Time) string {
	return now.Format(Layout)
}
