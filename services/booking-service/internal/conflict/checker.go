// Package conflict decides whether a proposed appointment interval may be booked: shop rules
// first, then overlap with what is already on the timeline.
package conflict

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/policy"
)

// ReasonOverlap is reported when the candidate intersects an occupied interval.
const ReasonOverlap policy.Reason = "overlap"

type Candidate struct {
	Start           time.Time
	DurationMinutes int
	// ExcludeID is the appointment being rescheduled, so it never conflicts with itself.
	ExcludeID string
}

func (c Candidate) End() time.Time {
	return c.Start.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

type Verdict struct {
	Reason       policy.Reason
	ConflictWith string
}

func (v Verdict) Accepted() bool { return v.Reason == policy.ReasonNone }

type Checker struct {
	calendar policy.Calendar
}

func NewChecker(cal policy.Calendar) *Checker {
	return &Checker{calendar: cal}
}

func (c *Checker) Calendar() policy.Calendar { return c.calendar }

// Check runs the calendar policy and then the overlap scan for the candidate's shop day. idx is
// passed per call so callers can check against a transaction-scoped view.
func (c *Checker) Check(ctx context.Context, idx *availability.Index, now time.Time, cand Candidate) (Verdict, error) {
	if reason := c.calendar.Evaluate(now, cand.Start, cand.DurationMinutes); reason != policy.ReasonNone {
		return Verdict{Reason: reason}, nil
	}

	dayStart, dayEnd := c.calendar.DayBounds(cand.Start)
	busy, err := idx.OccupiedIntervals(ctx, dayStart, dayEnd, cand.ExcludeID)
	if err != nil {
		return Verdict{}, err
	}
	start, end := cand.Start, cand.End()
	for _, iv := range busy {
		if iv.Overlaps(start, end) {
			return Verdict{Reason: ReasonOverlap, ConflictWith: iv.AppointmentID}, nil
		}
	}
	return Verdict{}, nil
}
