package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

var all = []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCompleted, model.StatusCancelled}

func TestCanTransition_Table(t *testing.T) {
	legal := map[[2]model.Status]bool{
		{model.StatusPending, model.StatusConfirmed}:   true,
		{model.StatusPending, model.StatusCancelled}:   true,
		{model.StatusPending, model.StatusCompleted}:   true,
		{model.StatusConfirmed, model.StatusCancelled}: true,
		{model.StatusConfirmed, model.StatusCompleted}: true,
	}
	for _, from := range all {
		for _, to := range all {
			want := from == to || legal[[2]model.Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_TerminalIsFinal(t *testing.T) {
	for _, from := range []model.Status{model.StatusCompleted, model.StatusCancelled} {
		for _, to := range all {
			if to != from && CanTransition(from, to) {
				t.Fatalf("%s must not move to %s", from, to)
			}
		}
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		start  time.Time
		status model.Status
		want   bool
	}{
		{"pending yesterday", now.AddDate(0, 0, -1), model.StatusPending, true},
		{"confirmed an hour ago", now.Add(-time.Hour), model.StatusConfirmed, true},
		{"starts exactly now", now, model.StatusPending, false},
		{"future", now.Add(time.Hour), model.StatusPending, false},
		{"already completed", now.AddDate(0, 0, -1), model.StatusCompleted, false},
		{"cancelled", now.AddDate(0, 0, -1), model.StatusCancelled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appt := model.Appointment{StartTime: tc.start, Status: tc.status}
			if got := Due(appt, now); got != tc.want {
				t.Fatalf("Due = %v, want %v", got, tc.want)
			}
		})
	}
}

type countingCompleter struct {
	mu     sync.Mutex
	calls  int
	limits []int
	err    error
	done   chan struct{}
}

func (c *countingCompleter) CompleteDue(_ context.Context, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.limits = append(c.limits, limit)
	if c.calls == 2 {
		close(c.done)
	}
	return 1, c.err
}

func TestWorker_SweepsOnStartAndTick(t *testing.T) {
	c := &countingCompleter{done: make(chan struct{}), err: errors.New("transient")}
	w := NewWorker(c, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{Interval: 10 * time.Millisecond, BatchSize: 7})

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not keep sweeping after an error")
	}
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limits[0] != 7 {
		t.Fatalf("expected batch size 7, got %d", c.limits[0])
	}
}
