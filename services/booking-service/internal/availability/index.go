package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/policy"
)

// Finder is the persistence read the index needs. storage.Reader and storage.Tx both satisfy it,
// so the same index answers inside and outside a transaction.
type Finder interface {
	FindInRange(ctx context.Context, from, to time.Time, statuses []model.Status, excludeID string) ([]model.Appointment, error)
}

// Index answers "which intervals are occupied" straight from the persistence layer. It keeps no
// state of its own.
type Index struct {
	finder Finder
}

func NewIndex(finder Finder) *Index {
	return &Index{finder: finder}
}

// OccupiedIntervals returns the pending and confirmed appointments starting in [from, to], ordered
// by start. A zero from or to leaves that side of the range open.
func (x *Index) OccupiedIntervals(ctx context.Context, from, to time.Time, excludeID string) ([]Interval, error) {
	appts, err := x.finder.FindInRange(ctx, from, to, model.ActiveStatuses, excludeID)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		out = append(out, Interval{
			AppointmentID:   a.ID,
			Start:           a.StartTime,
			DurationMinutes: a.Service.DurationMinutes,
		})
	}
	return out, nil
}

// FreeSlots lists bookable start times on day for a booking of durationMinutes, walking the
// calendar windows in step increments and skipping anything already occupied or in the past.
func (x *Index) FreeSlots(ctx context.Context, cal policy.Calendar, day time.Time, durationMinutes int, step time.Duration, now time.Time) ([]time.Time, error) {
	windows := cal.Windows(day)
	if len(windows) == 0 || durationMinutes <= 0 {
		return nil, nil
	}
	dayStart, dayEnd := cal.DayBounds(day)
	busy, err := x.OccupiedIntervals(ctx, dayStart, dayEnd, "")
	if err != nil {
		return nil, err
	}
	// A booking from the previous evening can still run into this day.
	prev, err := x.OccupiedIntervals(ctx, dayStart.AddDate(0, 0, -1), dayStart.Add(-time.Nanosecond), "")
	if err != nil {
		return nil, err
	}
	busy = append(prev, busy...)

	duration := time.Duration(durationMinutes) * time.Minute
	var slots []time.Time
	for _, w := range windows {
		slots = append(slots, AvailableSlots(w.Start, w.End, duration, step, busy, now)...)
	}
	return slots, nil
}
