package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/storage"
)

var now = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 3, hour, minute, 0, 0, time.UTC)
}

func seeded(t *testing.T, appts ...model.Appointment) *availability.Index {
	t.Helper()
	s := storage.NewMemoryStore()
	err := s.Atomically(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		for _, a := range appts {
			if err := tx.Insert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return availability.NewIndex(s)
}

func existing(id string, start time.Time, minutes int) model.Appointment {
	return model.Appointment{
		ID:        id,
		OwnerID:   "someone",
		StartTime: start,
		Status:    model.StatusConfirmed,
		Service:   model.ServiceDescriptor{Name: "Haircut", DurationMinutes: minutes},
	}
}

func TestCheck_Overlap(t *testing.T) {
	idx := seeded(t, existing("a", at(10, 0), 60))
	c := NewChecker(policy.Default())

	v, err := c.Check(context.Background(), idx, now, Candidate{Start: at(10, 30), DurationMinutes: 30})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Reason != ReasonOverlap || v.ConflictWith != "a" {
		t.Fatalf("expected overlap with a, got %+v", v)
	}

	v, err = c.Check(context.Background(), idx, now, Candidate{Start: at(11, 0), DurationMinutes: 30})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Accepted() {
		t.Fatalf("back-to-back booking must be accepted, got %+v", v)
	}
}

func TestCheck_AdjacentBefore(t *testing.T) {
	idx := seeded(t, existing("a", at(10, 0), 60))
	v, err := NewChecker(policy.Default()).Check(context.Background(), idx, now, Candidate{Start: at(9, 30), DurationMinutes: 30})
	if err != nil || !v.Accepted() {
		t.Fatalf("booking ending at another's start must be accepted, got %+v (%v)", v, err)
	}
}

func TestCheck_ExcludeSelf(t *testing.T) {
	idx := seeded(t, existing("a", at(10, 0), 60))
	c := NewChecker(policy.Default())

	v, err := c.Check(context.Background(), idx, now, Candidate{Start: at(10, 0), DurationMinutes: 60, ExcludeID: "a"})
	if err != nil || !v.Accepted() {
		t.Fatalf("rescheduling onto its own slot must be accepted, got %+v (%v)", v, err)
	}
	v, _ = c.Check(context.Background(), idx, now, Candidate{Start: at(10, 15), DurationMinutes: 60, ExcludeID: "a"})
	if !v.Accepted() {
		t.Fatalf("shifting within its own slot must be accepted, got %+v", v)
	}
}

func TestCheck_PolicyRunsFirst(t *testing.T) {
	idx := seeded(t, existing("a", at(12, 0), 60))
	v, err := NewChecker(policy.Default()).Check(context.Background(), idx, now, Candidate{Start: at(12, 30), DurationMinutes: 60})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Reason != policy.ReasonDuringBreak {
		t.Fatalf("expected during_break before overlap, got %q", v.Reason)
	}
}

func TestCheck_OtherDaysIgnored(t *testing.T) {
	idx := seeded(t, existing("a", at(10, 0).AddDate(0, 0, 1), 60))
	v, err := NewChecker(policy.Default()).Check(context.Background(), idx, now, Candidate{Start: at(10, 0), DurationMinutes: 60})
	if err != nil || !v.Accepted() {
		t.Fatalf("expected accepted, got %+v (%v)", v, err)
	}
}

type failingFinder struct{ err error }

func (f failingFinder) FindInRange(context.Context, time.Time, time.Time, []model.Status, string) ([]model.Appointment, error) {
	return nil, f.err
}

func TestCheck_StorageError(t *testing.T) {
	boom := errors.New("boom")
	idx := availability.NewIndex(failingFinder{err: boom})
	if _, err := NewChecker(policy.Default()).Check(context.Background(), idx, now, Candidate{Start: at(10, 0), DurationMinutes: 30}); !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
