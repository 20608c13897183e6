package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/shopbook/libs/httpx"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

// Bookings is what the HTTP layer needs from booking.Service.
type Bookings interface {
	Create(ctx context.Context, actor model.Actor, in booking.CreateInput) (model.Appointment, error)
	Reschedule(ctx context.Context, actor model.Actor, id string, in booking.RescheduleInput) (model.Appointment, error)
	Cancel(ctx context.Context, actor model.Actor, id string) (model.Appointment, error)
	Delete(ctx context.Context, actor model.Actor, id string) error
	SetStatus(ctx context.Context, actor model.Actor, id string, status model.Status) (model.Appointment, error)
	ListBookings(ctx context.Context, actor model.Actor, ownerID string) ([]model.Appointment, error)
	ListAvailability(ctx context.Context, from, to time.Time) ([]availability.Interval, error)
	FreeSlots(ctx context.Context, day time.Time, durationMinutes int) ([]time.Time, error)
}

type BookingHandler struct {
	svc    Bookings
	logger *slog.Logger
	// loc interprets times sent without an offset and plain dates.
	loc *time.Location
}

func NewBookingHandler(svc Bookings, logger *slog.Logger, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{svc: svc, logger: logger, loc: loc}
}

// Register mounts the API on mux. authn guards every route.
func (h *BookingHandler) Register(mux *http.ServeMux, authn func(http.Handler) http.Handler) {
	mux.Handle("/api/v1/bookings", authn(http.HandlerFunc(h.Bookings)))
	mux.Handle("/api/v1/bookings/reschedule", authn(http.HandlerFunc(h.Reschedule)))
	mux.Handle("/api/v1/bookings/cancel", authn(http.HandlerFunc(h.Cancel)))
	mux.Handle("/api/v1/bookings/delete", authn(http.HandlerFunc(h.Delete)))
	mux.Handle("/api/v1/admin/bookings/status", authn(http.HandlerFunc(h.SetStatus)))
	mux.Handle("/api/v1/availability", authn(http.HandlerFunc(h.Availability)))
	mux.Handle("/api/v1/availability/slots", authn(http.HandlerFunc(h.Slots)))
}

type createBookingRequest struct {
	OwnerID         string `json:"owner_id"`
	ServiceName     string `json:"service_name"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

type rescheduleRequest struct {
	AppointmentID   string  `json:"appointment_id"`
	StartTime       *string `json:"start_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	ServiceName     *string `json:"service_name"`
	Notes           *string `json:"notes"`
}

type appointmentRef struct {
	AppointmentID string `json:"appointment_id"`
}

type setStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	OwnerID         string `json:"owner_id"`
	ServiceName     string `json:"service_name"`
	ServicePrice    string `json:"service_price"`
	DurationMinutes int    `json:"duration_minutes"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type intervalItem struct {
	AppointmentID   string `json:"appointment_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Field  string `json:"field,omitempty"`
}

func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := h.parseTime(req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start_time", Field: "start_time"})
		return
	}

	actor, _ := ActorFromContext(r.Context())
	appt, err := h.svc.Create(r.Context(), actor, booking.CreateInput{
		OwnerID:         req.OwnerID,
		ServiceName:     req.ServiceName,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	appts, err := h.svc.ListBookings(r.Context(), actor, r.URL.Query().Get("owner_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	in := booking.RescheduleInput{
		DurationMinutes: req.DurationMinutes,
		ServiceName:     req.ServiceName,
		Notes:           req.Notes,
	}
	if req.StartTime != nil {
		start, err := h.parseTime(*req.StartTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start_time", Field: "start_time"})
			return
		}
		in.Start = &start
	}

	actor, _ := ActorFromContext(r.Context())
	appt, err := h.svc.Reschedule(r.Context(), actor, strings.TrimSpace(req.AppointmentID), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentRef
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	appt, err := h.svc.Cancel(r.Context(), actor, strings.TrimSpace(req.AppointmentID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentRef
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), actor, strings.TrimSpace(req.AppointmentID)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setStatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, ok := model.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid status", Field: "status"})
		return
	}
	actor, _ := ActorFromContext(r.Context())
	appt, err := h.svc.SetStatus(r.Context(), actor, strings.TrimSpace(req.AppointmentID), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

// Availability lists occupied intervals. from and to accept RFC 3339 timestamps or plain dates;
// a plain to-date covers that whole day. Either bound may be omitted.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	from, err := h.parseBound(r.URL.Query().Get("from"), false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid from", Field: "from"})
		return
	}
	to, err := h.parseBound(r.URL.Query().Get("to"), true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid to", Field: "to"})
		return
	}

	intervals, err := h.svc.ListAvailability(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]intervalItem, 0, len(intervals))
	for _, iv := range intervals {
		items = append(items, intervalItem{
			AppointmentID:   iv.AppointmentID,
			StartTime:       iv.Start.UTC().Format(time.RFC3339),
			EndTime:         iv.End().UTC().Format(time.RFC3339),
			DurationMinutes: iv.DurationMinutes,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(r.URL.Query().Get("date")), h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "date must be YYYY-MM-DD", Field: "date"})
		return
	}
	duration := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid duration_minutes", Field: "duration_minutes"})
			return
		}
		duration = n
	}

	starts, err := h.svc.FreeSlots(r.Context(), day, duration)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		items = append(items, slotItem{
			StartTime: s.UTC().Format(time.RFC3339),
			EndTime:   s.Add(time.Duration(duration) * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// parseTime accepts RFC 3339, or a wall-clock "2006-01-02T15:04" read in the shop location.
func (h *BookingHandler) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04", raw, h.loc)
}

func (h *BookingHandler) parseBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.ParseInLocation("2006-01-02", raw, h.loc); err == nil {
		if endOfDay {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	}
	return h.parseTime(raw)
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	var rej *booking.RejectionError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &rej) && rej.Overlap():
		writeJSON(w, http.StatusConflict, errorBody{Error: rej.Error(), Reason: string(rej.Reason)})
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: rej.Error(), Reason: string(rej.Reason)})
	case errors.Is(err, booking.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, booking.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, booking.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Reason: "invalid_transition"})
	case errors.Is(err, booking.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Reason: "concurrent_update"})
	default:
		h.logger.Error("booking request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func toItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID:   a.ID,
		OwnerID:         a.OwnerID,
		ServiceName:     a.Service.Name,
		ServicePrice:    a.Service.Price,
		DurationMinutes: a.Service.DurationMinutes,
		StartTime:       a.StartTime.UTC().Format(time.RFC3339),
		EndTime:         a.EndTime().UTC().Format(time.RFC3339),
		Status:          string(a.Status),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
