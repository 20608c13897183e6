package availability

import (
	"slices"
	"time"
)

// Interval is an occupied stretch of the shop timeline. End is derived, never stored.
type Interval struct {
	AppointmentID   string
	Start           time.Time
	DurationMinutes int
}

func (i Interval) End() time.Time {
	return i.Start.Add(time.Duration(i.DurationMinutes) * time.Minute)
}

// Overlaps reports whether [start, end) intersects the interval. Half-open on both sides, so
// an interval ending exactly when the other starts does not overlap.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End()) && end.After(i.Start)
}

// AvailableSlots walks [windowStart, windowEnd) in step increments and returns every start t
// at or after now for which [t, t+duration) fits the window and misses all busy intervals.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	sorted := slices.Clone(busy)
	slices.SortFunc(sorted, func(a, b Interval) int { return a.Start.Compare(b.Start) })

	var slots []time.Time
	first := 0
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		// Intervals over before t cannot block this or any later candidate.
		for first < len(sorted) && !sorted[first].End().After(t) {
			first++
		}
		end := t.Add(duration)
		free := true
		for _, b := range sorted[first:] {
			if !b.Start.Before(end) {
				break
			}
			if b.Overlaps(t, end) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, t)
		}
	}
	return slots
}
