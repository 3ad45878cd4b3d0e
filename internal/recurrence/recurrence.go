// Package recurrence decides whether a medication is due on a calendar date.
package recurrence

import (
	"strconv"
	"strings"

	"github.com/medtab/medtab/internal/dates"
)

// Kind is the recurrence rule kind of a medication config.
type Kind string

const (
	Daily    Kind = "DAILY"
	Weekly   Kind = "WEEKLY"
	Interval Kind = "INTERVAL"
)

// IsDue reports whether a dose is due on targetDate under the given rule.
// All dates are YYYY-MM-DD strings, compared date-only. Malformed rule
// parameters or dates degrade to "not due"; the function never errors.
//
//   - DAILY: due on every date within [startDate, endDate].
//   - WEEKLY: param is a comma-separated weekday set, Sunday=0.
//   - INTERVAL: param is a day count n; due every n-th day from startDate.
func IsDue(kind Kind, param, startDate, endDate, targetDate string) bool {
	if !dates.Valid(targetDate) || !dates.Valid(startDate) || !dates.Valid(endDate) {
		return false
	}
	if targetDate < startDate || targetDate > endDate {
		return false
	}

	switch kind {
	case Daily:
		return true
	case Weekly:
		days, ok := ParseWeekdaySet(param)
		if !ok {
			return false
		}
		wd, err := dates.Weekday(targetDate)
		if err != nil {
			return false
		}
		return days[wd]
	case Interval:
		every, err := strconv.Atoi(strings.TrimSpace(param))
		if err != nil || every <= 0 {
			return false
		}
		n, err := dates.DaysBetween(startDate, targetDate)
		if err != nil || n < 0 {
			return false
		}
		return n%every == 0
	default:
		return false
	}
}

// ParseWeekdaySet parses a comma-separated weekday list ("1,3,5") into a
// membership set keyed Sunday=0. An empty or malformed list returns ok=false.
func ParseWeekdaySet(param string) (map[int]bool, bool) {
	param = strings.TrimSpace(param)
	if param == "" {
		return nil, false
	}

	set := make(map[int]bool)
	for _, part := range strings.Split(param, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 || day > 6 {
			return nil, false
		}
		set[day] = true
	}
	return set, true
}
