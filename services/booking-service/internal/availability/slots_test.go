package availability

import (
	"testing"
	"time"
)

func TestAvailableSlots_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 1, 28, 10, 0, 0, 0, loc)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), DurationMinutes: 30},
	}

	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(10 * time.Hour)

	now := day.Add(9*time.Hour + 31*time.Minute)
	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, nil, now)
	// 09:00, 09:15, 09:30 are in the past (start < now). 09:45 is future.
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 09:45, got %s", slots[0].Format(time.RFC3339))
	}
}

func TestInterval_OverlapsIsHalfOpen(t *testing.T) {
	ten := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	iv := Interval{Start: ten, DurationMinutes: 60}

	if !iv.End().Equal(ten.Add(time.Hour)) {
		t.Fatalf("unexpected end %s", iv.End())
	}
	if iv.Overlaps(ten.Add(time.Hour), ten.Add(90*time.Minute)) {
		t.Fatal("interval starting at end must not overlap")
	}
	if iv.Overlaps(ten.Add(-30*time.Minute), ten) {
		t.Fatal("interval ending at start must not overlap")
	}
	if !iv.Overlaps(ten.Add(30*time.Minute), ten.Add(45*time.Minute)) {
		t.Fatal("contained interval must overlap")
	}
}

func TestAvailableSlots_UnsortedBusyAndEdges(t *testing.T) {
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{AppointmentID: "late", Start: day.Add(11 * time.Hour), DurationMinutes: 30},
		{AppointmentID: "early", Start: day.Add(9*time.Hour + 30*time.Minute), DurationMinutes: 30},
	}
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(12*time.Hour+30*time.Minute), time.Hour, 30*time.Minute, busy, day)

	want := []time.Duration{10 * time.Hour, 11*time.Hour + 30*time.Minute}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), slots)
	}
	for i, w := range want {
		if !slots[i].Equal(day.Add(w)) {
			t.Fatalf("slot %d: expected %s, got %s", i, day.Add(w).Format(time.RFC3339), slots[i].Format(time.RFC3339))
		}
	}

	if got := AvailableSlots(day.Add(9*time.Hour), day.Add(9*time.Hour+30*time.Minute), time.Hour, 30*time.Minute, nil, day); got != nil {
		t.Fatalf("duration longer than the window must yield nothing, got %v", got)
	}
}
