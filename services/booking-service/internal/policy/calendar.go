package policy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reason identifies why a proposed interval was rejected. The zero value means accepted.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonInThePast     Reason = "in_the_past"
	ReasonClosedDay     Reason = "closed_day"
	ReasonBeforeOpening Reason = "before_opening"
	ReasonAfterClosing  Reason = "after_closing"
	ReasonDuringBreak   Reason = "during_break"
)

func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return "accepted"
	case ReasonInThePast:
		return "appointments cannot be booked in the past"
	case ReasonClosedDay:
		return "the shop is closed on that day"
	case ReasonBeforeOpening:
		return "the appointment starts before opening time"
	case ReasonAfterClosing:
		return "the appointment ends after closing time"
	case ReasonDuringBreak:
		return "the appointment overlaps the lunch break"
	default:
		return string(r)
	}
}

// ClockTime is a wall-clock time of day, in minutes since midnight.
type ClockTime int

func ParseClockTime(raw string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", raw)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func MustClockTime(raw string) ClockTime {
	c, err := ParseClockTime(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns this time of day on the calendar day of t, in t's location.
func (c ClockTime) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, t.Location())
}

// Window is a half-open bookable interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Calendar holds the shop rules: open weekdays, opening hours and a daily break.
// A break with BreakEnd <= BreakStart is treated as "no break".
type Calendar struct {
	Location   *time.Location
	OpenDays   []time.Weekday
	Opening    ClockTime
	Closing    ClockTime
	BreakStart ClockTime
	BreakEnd   ClockTime
}

// Default is Monday to Friday, 09:00-19:00 with a 13:00-14:00 break, in UTC.
func Default() Calendar {
	return Calendar{
		Location:   time.UTC,
		OpenDays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Opening:    MustClockTime("09:00"),
		Closing:    MustClockTime("19:00"),
		BreakStart: MustClockTime("13:00"),
		BreakEnd:   MustClockTime("14:00"),
	}
}

func (c Calendar) Validate() error {
	if len(c.OpenDays) == 0 {
		return errors.New("calendar: at least one open day is required")
	}
	if c.Opening < 0 || c.Closing > 24*60 || c.Closing <= c.Opening {
		return fmt.Errorf("calendar: closing %s must be after opening %s", c.Closing, c.Opening)
	}
	if c.hasBreak() && (c.BreakStart < c.Opening || c.BreakEnd > c.Closing) {
		return fmt.Errorf("calendar: break %s-%s must fall within opening hours", c.BreakStart, c.BreakEnd)
	}
	return nil
}

// Evaluate checks [start, start+duration) against the shop rules. Rules are applied in a fixed
// order and the first failure wins. durationMinutes is expected to be positive.
func (c Calendar) Evaluate(now, start time.Time, durationMinutes int) Reason {
	if start.Before(now) {
		return ReasonInThePast
	}

	local := start.In(c.location())
	if !c.IsOpenDay(local.Weekday()) {
		return ReasonClosedDay
	}
	if local.Before(c.Opening.On(local)) {
		return ReasonBeforeOpening
	}

	// Closing is anchored to the start's day, so an interval running past midnight fails here.
	end := local.Add(time.Duration(durationMinutes) * time.Minute)
	if end.After(c.Closing.On(local)) {
		return ReasonAfterClosing
	}

	if c.hasBreak() {
		breakStart, breakEnd := c.BreakStart.On(local), c.BreakEnd.On(local)
		if local.Before(breakEnd) && end.After(breakStart) {
			return ReasonDuringBreak
		}
	}
	return ReasonNone
}

func (c Calendar) IsOpenDay(d time.Weekday) bool {
	for _, open := range c.OpenDays {
		if open == d {
			return true
		}
	}
	return false
}

// DayBounds returns the first and last instant of t's calendar day in the shop location.
func (c Calendar) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(c.location())
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, local.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Windows returns the bookable windows of day: opening hours minus the break.
// Closed days have no windows.
func (c Calendar) Windows(day time.Time) []Window {
	local := day.In(c.location())
	if !c.IsOpenDay(local.Weekday()) {
		return nil
	}
	open, closing := c.Opening.On(local), c.Closing.On(local)
	if !c.hasBreak() {
		return []Window{{Start: open, End: closing}}
	}
	var out []Window
	if bs := c.BreakStart.On(local); bs.After(open) {
		out = append(out, Window{Start: open, End: bs})
	}
	if be := c.BreakEnd.On(local); closing.After(be) {
		out = append(out, Window{Start: be, End: closing})
	}
	return out
}

func (c Calendar) hasBreak() bool {
	return c.BreakEnd > c.BreakStart
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays parses lists such as "mon-fri" or "mon,wed,sat". Ranges may wrap ("fri-mon").
func ParseWeekdays(raw string) ([]time.Weekday, error) {
	seen := map[time.Weekday]bool{}
	var out []time.Weekday
	add := func(d time.Weekday) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		first, err := parseWeekday(from)
		if err != nil {
			return nil, err
		}
		if !isRange {
			add(first)
			continue
		}
		last, err := parseWeekday(to)
		if err != nil {
			return nil, err
		}
		for d := first; ; d = (d + 1) % 7 {
			add(d)
			if d == last {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no weekdays in %q", raw)
	}
	return out, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 3 {
		if d, ok := weekdayNames[raw[:3]]; ok {
			return d, nil
		}
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}
