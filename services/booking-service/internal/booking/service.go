// Package booking is the single entry point that creates and mutates appointments.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Longest appointment accepted; nothing fits in more than one shop day anyway.
const maxDurationMinutes = 24 * 60

// Notifier delivers booking notifications. Failures are logged and never undo a mutation.
type Notifier interface {
	Notify(ctx context.Context, evt model.Event, appt model.Appointment, recipient string) error
}

type Config struct {
	// SlotStep is the spacing of start times offered by FreeSlots.
	SlotStep time.Duration
	// SweepBatchSize bounds a single completion pass.
	SweepBatchSize int
}

type Service struct {
	store     storage.Store
	checker   *conflict.Checker
	catalog   catalog.Catalog
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	slotStep  time.Duration
	sweepSize int
}

func NewService(store storage.Store, checker *conflict.Checker, cat catalog.Catalog, notifier Notifier, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = 15 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	return &Service{
		store:     store,
		checker:   checker,
		catalog:   cat,
		notifier:  notifier,
		clock:     clk,
		logger:    logger,
		tracer:    otel.Tracer("booking"),
		slotStep:  cfg.SlotStep,
		sweepSize: cfg.SweepBatchSize,
	}
}

type CreateInput struct {
	// OwnerID is honoured for administrators only; clients always book for themselves.
	OwnerID     string
	ServiceName string
	Start       time.Time
	// DurationMinutes overrides the catalog duration when positive.
	DurationMinutes int
	Notes           string
}

func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.create", actor)
	defer func() { endSpan(span, err) }()

	if err := validActor(actor); err != nil {
		return model.Appointment{}, err
	}
	owner := actor.ID
	if actor.IsAdmin() && strings.TrimSpace(in.OwnerID) != "" {
		owner = strings.TrimSpace(in.OwnerID)
	}
	if strings.TrimSpace(in.ServiceName) == "" {
		return model.Appointment{}, invalid("service_name", "is required")
	}
	if in.Start.IsZero() {
		return model.Appointment{}, invalid("start_time", "is required")
	}
	if in.DurationMinutes < 0 || in.DurationMinutes > maxDurationMinutes {
		return model.Appointment{}, invalid("duration_minutes", "out of range")
	}

	now := s.clock.Now()
	if in.Start.Before(now) {
		return model.Appointment{}, &RejectionError{Reason: ErrInThePast.Reason}
	}

	svc, err := s.lookupService(ctx, in.ServiceName)
	if err != nil {
		return model.Appointment{}, err
	}
	duration := svc.DurationMinutes
	if in.DurationMinutes > 0 {
		duration = in.DurationMinutes
	}
	if duration < 1 {
		return model.Appointment{}, invalid("duration_minutes", "must be at least one minute")
	}

	appt = model.Appointment{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Service:   model.ServiceDescriptor{Name: svc.Name, Price: svc.Price, DurationMinutes: duration},
		StartTime: in.Start.UTC(),
		Status:    model.StatusPending,
		Notes:     strings.TrimSpace(in.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := s.check(ctx, tx, now, conflict.Candidate{Start: appt.StartTime, DurationMinutes: duration}); err != nil {
			return err
		}
		return tx.Insert(ctx, appt)
	})
	if err != nil {
		return model.Appointment{}, translateSchedule(err)
	}

	s.logger.Info("appointment created", "appointment_id", appt.ID, "owner_id", owner, "start_time", appt.StartTime)
	s.notify(ctx, model.EventBookingCreated, appt)
	return appt, nil
}

// RescheduleInput fields are optional; nil leaves the value unchanged.
type RescheduleInput struct {
	Start           *time.Time
	DurationMinutes *int
	ServiceName     *string
	Notes           *string
}

func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id string, in RescheduleInput) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.reschedule", actor)
	span.SetAttributes(attribute.String("appointment.id", id))
	defer func() { endSpan(span, err) }()

	if err := validActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if in.Start != nil && in.Start.IsZero() {
		return model.Appointment{}, invalid("start_time", "must not be empty")
	}
	if in.DurationMinutes != nil && (*in.DurationMinutes < 1 || *in.DurationMinutes > maxDurationMinutes) {
		return model.Appointment{}, invalid("duration_minutes", "out of range")
	}

	var svc *catalog.Service
	if in.ServiceName != nil {
		if strings.TrimSpace(*in.ServiceName) == "" {
			return model.Appointment{}, invalid("service_name", "must not be empty")
		}
		found, err := s.lookupService(ctx, *in.ServiceName)
		if err != nil {
			return model.Appointment{}, err
		}
		svc = &found
	}

	now := s.clock.Now()
	var before model.Appointment
	err = s.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, cur.Status)
		}
		if !actor.IsAdmin() && cur.Status != model.StatusPending {
			return ErrForbidden
		}
		before = cur

		next := cur
		if svc != nil {
			next.Service = model.ServiceDescriptor{Name: svc.Name, Price: svc.Price, DurationMinutes: svc.DurationMinutes}
		}
		if in.DurationMinutes != nil {
			next.Service.DurationMinutes = *in.DurationMinutes
		}
		if in.Start != nil {
			next.StartTime = in.Start.UTC()
		}
		if in.Notes != nil {
			next.Notes = strings.TrimSpace(*in.Notes)
		}

		moved := !next.StartTime.Equal(cur.StartTime) || next.Service.DurationMinutes != cur.Service.DurationMinutes
		if moved {
			cand := conflict.Candidate{Start: next.StartTime, DurationMinutes: next.Service.DurationMinutes, ExcludeID: cur.ID}
			if err := s.check(ctx, tx, now, cand); err != nil {
				return err
			}
		}
		next.UpdatedAt = now
		appt = next
		return tx.Update(ctx, next)
	})
	if err != nil {
		return model.Appointment{}, translateSchedule(err)
	}

	if !appt.StartTime.Equal(before.StartTime) || appt.Service.Name != before.Service.Name {
		s.notify(ctx, model.EventBookingRescheduled, appt)
	}
	return appt, nil
}

// Cancel marks the appointment cancelled. Cancelling twice returns the cancelled appointment.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id string) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.cancel", actor)
	span.SetAttributes(attribute.String("appointment.id", id))
	defer func() { endSpan(span, err) }()

	if err := validActor(actor); err != nil {
		return model.Appointment{}, err
	}
	now := s.clock.Now()
	var changed bool
	err = s.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Replayed attempts start over.
		changed = false
		cur, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		appt = cur
		if cur.Status == model.StatusCancelled {
			return nil
		}
		if !actor.IsAdmin() && cur.Status != model.StatusPending {
			return ErrForbidden
		}
		if !lifecycle.CanTransition(cur.Status, model.StatusCancelled) {
			return &TransitionError{From: cur.Status, To: model.StatusCancelled}
		}
		cur.Status = model.StatusCancelled
		cur.UpdatedAt = now
		appt, changed = cur, true
		return tx.Update(ctx, cur)
	})
	if err != nil {
		return model.Appointment{}, translate(err)
	}
	if changed {
		s.logger.Info("appointment cancelled", "appointment_id", id, "actor_id", actor.ID)
		s.notify(ctx, model.EventBookingCancelled, appt)
	}
	return appt, nil
}

// Delete removes the appointment for good. Clients may only delete their own pending bookings.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) (err error) {
	ctx, span := s.start(ctx, "booking.delete", actor)
	span.SetAttributes(attribute.String("appointment.id", id))
	defer func() { endSpan(span, err) }()

	if err := validActor(actor); err != nil {
		return err
	}
	var removed model.Appointment
	err = s.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && cur.Status != model.StatusPending {
			return ErrForbidden
		}
		removed = cur
		return tx.Delete(ctx, cur.ID)
	})
	if err != nil {
		return translate(err)
	}
	s.logger.Info("appointment deleted", "appointment_id", id, "actor_id", actor.ID)
	if removed.Status.Active() {
		removed.Status = model.StatusCancelled
		s.notify(ctx, model.EventBookingCancelled, removed)
	}
	return nil
}

// SetStatus is the administrator's manual status edit. Setting the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, actor model.Actor, id string, status model.Status) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.set_status", actor)
	span.SetAttributes(attribute.String("appointment.id", id), attribute.String("appointment.status", string(status)))
	defer func() { endSpan(span, err) }()

	if err := validActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if !actor.IsAdmin() {
		return model.Appointment{}, ErrForbidden
	}
	if _, ok := model.ParseStatus(string(status)); !ok {
		return model.Appointment{}, invalid("status", "unknown status "+string(status))
	}

	now := s.clock.Now()
	var changed bool
	err = s.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Replayed attempts start over.
		changed = false
		cur, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		appt = cur
		if cur.Status == status {
			return nil
		}
		if !lifecycle.CanTransition(cur.Status, status) {
			return &TransitionError{From: cur.Status, To: status}
		}
		cur.Status = status
		cur.UpdatedAt = now
		appt, changed = cur, true
		return tx.Update(ctx, cur)
	})
	if err != nil {
		return model.Appointment{}, translate(err)
	}
	if changed {
		s.logger.Info("appointment status changed", "appointment_id", id, "status", string(status))
		s.notify(ctx, model.EventStatusChanged, appt)
	}
	return appt, nil
}

// ListBookings completes anything overdue in scope first, so callers never see a stale status.
// Clients may only list their own bookings; an empty ownerID lists everyone's for administrators.
func (s *Service) ListBookings(ctx context.Context, actor model.Actor, ownerID string) (appts []model.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.list", actor)
	defer func() { endSpan(span, err) }()

	if err := validActor(actor); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if !actor.IsAdmin() {
		if ownerID != "" && ownerID != actor.ID {
			return nil, ErrForbidden
		}
		ownerID = actor.ID
	}

	if _, err := s.completeDue(ctx, ownerID, s.sweepSize); err != nil {
		s.logger.Warn("opportunistic sweep failed", "err", err, "owner_id", ownerID)
	}
	return s.store.List(ctx, storage.ListFilter{OwnerID: ownerID})
}

// ListAvailability returns the occupied intervals starting in [from, to]; zero bounds are open.
func (s *Service) ListAvailability(ctx context.Context, from, to time.Time) ([]availability.Interval, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	return availability.NewIndex(s.store).OccupiedIntervals(ctx, from, to, "")
}

// FreeSlots lists bookable start times on day for a booking of durationMinutes.
func (s *Service) FreeSlots(ctx context.Context, day time.Time, durationMinutes int) ([]time.Time, error) {
	if day.IsZero() {
		return nil, invalid("date", "is required")
	}
	if durationMinutes < 1 || durationMinutes > maxDurationMinutes {
		return nil, invalid("duration_minutes", "out of range")
	}
	idx := availability.NewIndex(s.store)
	return idx.FreeSlots(ctx, s.checker.Calendar(), day, durationMinutes, s.slotStep, s.clock.Now())
}

// CompleteDue is the time-driven sweep: one bounded pass over overdue pending or confirmed
// appointments, each completed in its own transaction. Re-running it is a no-op.
func (s *Service) CompleteDue(ctx context.Context, limit int) (int, error) {
	return s.completeDue(ctx, "", limit)
}

func (s *Service) completeDue(ctx context.Context, ownerID string, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.store.ListDue(ctx, now, ownerID, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		var changed bool
		err := s.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
			changed = false
			cur, err := tx.FindByID(ctx, a.ID)
			if err != nil {
				return err
			}
			if !lifecycle.Due(cur, now) {
				return nil
			}
			cur.Status = model.StatusCompleted
			cur.UpdatedAt = now
			changed = true
			return tx.Update(ctx, cur)
		})
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			s.logger.Warn("auto-complete failed", "appointment_id", a.ID, "err", err)
		case changed:
			completed++
		}
	}
	return completed, nil
}

func (s *Service) check(ctx context.Context, tx storage.Tx, now time.Time, cand conflict.Candidate) error {
	v, err := s.checker.Check(ctx, availability.NewIndex(tx), now, cand)
	if err != nil {
		return err
	}
	if !v.Accepted() {
		return &RejectionError{Reason: v.Reason, ConflictWith: v.ConflictWith}
	}
	return nil
}

// load hides other clients' appointments behind ErrNotFound.
func (s *Service) load(ctx context.Context, tx storage.Tx, actor model.Actor, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, invalid("appointment_id", "is required")
	}
	appt, err := tx.FindByID(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !actor.IsAdmin() && appt.OwnerID != actor.ID {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (s *Service) lookupService(ctx context.Context, name string) (catalog.Service, error) {
	svc, err := s.catalog.FindServiceByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, catalog.ErrServiceNotFound) {
		return catalog.Service{}, invalid("service_name", "unknown service "+strings.TrimSpace(name))
	}
	return svc, err
}

func (s *Service) notify(ctx context.Context, evt model.Event, appt model.Appointment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, evt, appt, appt.OwnerID); err != nil {
		s.logger.Warn("booking notification failed", "event", string(evt), "appointment_id", appt.ID, "err", err)
	}
}

func (s *Service) start(ctx context.Context, name string, actor model.Actor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func validActor(actor model.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return ErrForbidden
	}
	switch actor.Role {
	case model.RoleClient, model.RoleAdmin:
		return nil
	default:
		return ErrForbidden
	}
}

// translate folds storage sentinels into the booking taxonomy for writes that move no time slot.
func translate(err error) error {
	switch {
	case errors.Is(err, storage.ErrBusy):
		return ErrBusy
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// translateSchedule is translate for writes that claim a slot. A write refused by the store, or
// one that kept losing to concurrent writers, is the late form of an overlap.
func translateSchedule(err error) error {
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrBusy) {
		return &RejectionError{Reason: ErrOverlap.Reason}
	}
	return translate(err)
}
