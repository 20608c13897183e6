package outbox

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

// Notifier records booking notifications as outbox rows; Publisher delivers them.
type Notifier struct {
	db    Execer
	repo  *Repository
	clock clock.Clock
}

func NewNotifier(db Execer, repo *Repository, clk clock.Clock) *Notifier {
	return &Notifier{db: db, repo: repo, clock: clk}
}

func (n *Notifier) Notify(ctx context.Context, evt model.Event, appt model.Appointment, recipient string) error {
	e, err := NewAppointmentEvent(evt, appt, recipient, n.clock.Now())
	if err != nil {
		return err
	}
	return n.repo.Insert(ctx, n.db, e)
}

// LogNotifier only logs. Used when no database backs the outbox.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, evt model.Event, appt model.Appointment, recipient string) error {
	n.logger.Info("booking notification",
		"event", string(evt),
		"appointment_id", appt.ID,
		"recipient", recipient,
		"status", string(appt.Status),
		"start_time", appt.StartTime,
	)
	return nil
}
