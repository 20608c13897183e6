package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("storage: appointment not found")
	// ErrConflict is returned when the store refuses a write because it would break the
	// single-timeline invariant.
	ErrConflict = errors.New("storage: conflicting appointment write")
	// ErrBusy is returned when a transaction kept being aborted by concurrent ones.
	ErrBusy = errors.New("storage: transaction retries exhausted")
)

// ListFilter selects appointments by start time. Zero values mean "no constraint".
type ListFilter struct {
	OwnerID   string
	From      time.Time
	To        time.Time
	Statuses  []model.Status
	ExcludeID string
	Limit     int
}

type Reader interface {
	FindByID(ctx context.Context, id string) (model.Appointment, error)
	// FindInRange returns appointments whose start lies in [from, to], both ends inclusive.
	FindInRange(ctx context.Context, from, to time.Time, statuses []model.Status, excludeID string) ([]model.Appointment, error)
	List(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	// ListDue returns pending or confirmed appointments that started before now, oldest first.
	ListDue(ctx context.Context, now time.Time, ownerID string, limit int) ([]model.Appointment, error)
}

type Tx interface {
	Reader
	Insert(ctx context.Context, appt model.Appointment) error
	Update(ctx context.Context, appt model.Appointment) error
	Delete(ctx context.Context, id string) error
}

// Store runs fn in one isolated transaction. Writes made by fn are discarded if it returns an error.
type Store interface {
	Reader
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

func hasStatus(statuses []model.Status, s model.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
