package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/shopbook/libs/auth"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/storage"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.NewStatic(catalog.Service{ID: "svc-1", Name: "Haircut", DurationMinutes: 30, Price: "25.00"})
	// Monday 2024-06-03 08:00 UTC.
	clk := clock.NewManual(time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC))
	svc := booking.NewService(storage.NewMemoryStore(), conflict.NewChecker(policy.Default()), cat,
		outbox.NewLogNotifier(logger), clk, logger, booking.Config{})

	mux := http.NewServeMux()
	NewBookingHandler(svc, logger, time.UTC).Register(mux, NewAuthenticator(nil, true).Middleware)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderRole, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBookingFlow(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "alice", "client", map[string]any{
		"service_name": "haircut",
		"start_time":   "2024-06-03T10:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[appointmentItem](t, rec)
	if created.Status != "pending" || created.EndTime != "2024-06-03T10:30:00Z" || created.ServicePrice != "25.00" {
		t.Fatalf("unexpected appointment %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "bob", "client", map[string]any{
		"service_name": "Haircut",
		"start_time":   "2024-06-03T10:15:00Z",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on overlap, got %d %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody[errorBody](t, rec); body.Reason != "overlap" || body.Error != "slot no longer available" {
		t.Fatalf("unexpected overlap body %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "bob", "client", map[string]any{
		"service_name": "Haircut",
		"start_time":   "2024-06-03T10:30:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("back-to-back booking: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/bookings", "alice", "client", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if items := decodeBody[[]appointmentItem](t, rec); len(items) != 1 || items[0].AppointmentID != created.AppointmentID {
		t.Fatalf("alice should see only her booking, got %+v", items)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/availability?from=2024-06-03&to=2024-06-03", "alice", "client", nil)
	if items := decodeBody[[]intervalItem](t, rec); rec.Code != http.StatusOK || len(items) != 2 {
		t.Fatalf("availability: %d %+v", rec.Code, items)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/cancel", "alice", "client", appointmentRef{AppointmentID: created.AppointmentID})
	if rec.Code != http.StatusOK || decodeBody[appointmentItem](t, rec).Status != "cancelled" {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/reschedule", "alice", "client", map[string]any{
		"appointment_id": created.AppointmentID,
		"start_time":     "2024-06-03T14:00:00Z",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("reschedule of cancelled booking: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPolicyRejectionIs422(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "alice", "client", map[string]any{
		"service_name": "Haircut",
		"start_time":   "2024-06-03T12:45:00Z",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if body := decodeBody[errorBody](t, rec); body.Reason != string(policy.ReasonDuringBreak) {
		t.Fatalf("unexpected reason %+v", body)
	}
}

type busyBookings struct {
	Bookings
}

func (busyBookings) Cancel(context.Context, model.Actor, string) (model.Appointment, error) {
	return model.Appointment{}, booking.ErrBusy
}

func TestBusyIsRetryableConflict(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewBookingHandler(busyBookings{}, logger, time.UTC).Register(mux, NewAuthenticator(nil, true).Middleware)

	rec := do(t, mux, http.MethodPost, "/api/v1/bookings/cancel", "alice", "client", appointmentRef{AppointmentID: "appt-1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After")
	}
	if body := decodeBody[errorBody](t, rec); body.Reason != "concurrent_update" {
		t.Fatalf("unexpected reason %+v", body)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newTestServer(t)
	cases := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"bad start", map[string]any{"service_name": "Haircut", "start_time": "tomorrow"}, "start_time"},
		{"unknown service", map[string]any{"service_name": "Shave", "start_time": "2024-06-03T10:00:00Z"}, "service_name"},
		{"missing service", map[string]any{"start_time": "2024-06-03T10:00:00Z"}, "service_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/bookings", "alice", "client", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
			}
			if body := decodeBody[errorBody](t, rec); body.Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, body)
			}
		})
	}
}

func TestStatusRequiresAdmin(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "alice", "client", map[string]any{
		"service_name": "Haircut",
		"start_time":   "2024-06-03T10:00:00Z",
	})
	id := decodeBody[appointmentItem](t, rec).AppointmentID

	rec = do(t, h, http.MethodPost, "/api/v1/admin/bookings/status", "alice", "client", setStatusRequest{AppointmentID: id, Status: "confirmed"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client status change: expected 403, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/admin/bookings/status", "staff", "admin", setStatusRequest{AppointmentID: id, Status: "Confirmed"})
	if rec.Code != http.StatusOK || decodeBody[appointmentItem](t, rec).Status != "confirmed" {
		t.Fatalf("admin confirm: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/admin/bookings/status", "staff", "admin", setStatusRequest{AppointmentID: id, Status: "archived"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/bookings/delete", "staff", "admin", appointmentRef{AppointmentID: id})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/bookings/cancel", "staff", "admin", appointmentRef{AppointmentID: id})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel after delete: expected 404, got %d", rec.Code)
	}
}

func TestSlots(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/availability/slots?date=2024-06-08&duration_minutes=30", "alice", "client", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: %d", rec.Code)
	}
	if items := decodeBody[[]slotItem](t, rec); len(items) != 0 {
		t.Fatalf("saturday should have no slots, got %d", len(items))
	}

	rec = do(t, h, http.MethodGet, "/api/v1/availability/slots?date=2024-06-03&duration_minutes=60", "alice", "client", nil)
	items := decodeBody[[]slotItem](t, rec)
	if rec.Code != http.StatusOK || len(items) == 0 || items[0].StartTime != "2024-06-03T09:00:00Z" || items[0].EndTime != "2024-06-03T10:00:00Z" {
		t.Fatalf("unexpected monday slots %d %+v", rec.Code, items)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/availability/slots?date=06/03", "alice", "client", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}
}

func TestAuthenticator(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		_, _ = io.WriteString(w, actor.ID+":"+string(actor.Role))
	})

	token, err := auth.SignHS256(auth.Claims{Sub: "u-1", Role: "ADMIN", Exp: time.Now().Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := NewAuthenticator(auth.NewVerifier("secret", nil), false).Middleware(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "u-1:admin" {
		t.Fatalf("bearer: %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u-2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("untrusted headers must be ignored, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	trusted := NewAuthenticator(nil, true).Middleware(ok)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u-2")
	req.Header.Set(HeaderRole, "owner")
	rec = httptest.NewRecorder()
	trusted.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "u-2:client" {
		t.Fatalf("trusted headers: %d %q", rec.Code, rec.Body.String())
	}
}
