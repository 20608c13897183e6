// Package lifecycle holds the appointment status machine and the time-driven completion sweep.
package lifecycle

import (
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled, model.StatusCompleted},
	model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted},
}

// CanTransition reports whether from -> to is a legal manual transition. Staying in the same
// status is always allowed and means nothing changes; terminal statuses accept nothing else.
func CanTransition(from, to model.Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Due reports whether the sweep should complete appt: it still occupies the timeline and its
// start is strictly before now.
func Due(appt model.Appointment, now time.Time) bool {
	return appt.Status.Active() && appt.StartTime.Before(now)
}
