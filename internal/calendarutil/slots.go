// Package calendarutil provides calendar interval arithmetic, chiefly the
// free-slot sweep used for scheduling suggestions.
package calendarutil

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has positive length.
func (iv Interval) Valid() bool {
	return !iv.Start.IsZero() && !iv.End.IsZero() && iv.Start.Before(iv.End)
}

// Overlaps reports whether two intervals share any time.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// FreeSlots sweeps the query range and returns duration-sized slots that
// avoid every busy interval and fall inside working hours. Slots are
// aligned on duration multiples from the sweep cursor, and each slot is
// clipped to the workday bounds of its own calendar day, so multi-day
// queries never produce overnight slots. Busy intervals need not be
// sorted or disjoint.
func FreeSlots(queryStart, queryEnd time.Time, busy []Interval, duration time.Duration, workStartHour, workEndHour int) []Interval {
	if duration <= 0 || !queryStart.Before(queryEnd) {
		return nil
	}

	valid := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.Valid() {
			valid = append(valid, b)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	dayWorkStart := atHour(queryStart, workStartHour)
	dayWorkEnd := atHour(queryEnd, workEndHour)

	cursor := maxTime(queryStart, dayWorkStart)
	var free []Interval

	// emit advances the cursor in duration steps up to limit, keeping
	// every candidate that fits the workday of the cursor's own day.
	emit := func(limit time.Time) {
		for !cursor.Add(duration).After(limit) {
			slotEnd := cursor.Add(duration)
			if !cursor.Before(atHour(cursor, workStartHour)) && !slotEnd.After(atHour(cursor, workEndHour)) {
				free = append(free, Interval{Start: cursor, End: slotEnd})
			}
			cursor = slotEnd
		}
	}

	for _, b := range valid {
		emit(minTime(minTime(b.Start, queryEnd), dayWorkEnd))
		cursor = maxTime(cursor, b.End)
		cursor = maxTime(cursor, dayWorkStart)
	}

	emit(minTime(queryEnd, dayWorkEnd))
	return free
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
