package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/shopbook/libs/kafkax"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

var sample = model.Appointment{
	ID:        "9f1c2d1e-8f0a-4d4b-9a43-2f1f4b0f7a11",
	OwnerID:   "client-1",
	Service:   model.ServiceDescriptor{Name: "Haircut", Price: "25.00", DurationMinutes: 30},
	StartTime: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	Status:    model.StatusPending,
}

func TestNotifier_WritesOutboxRow(t *testing.T) {
	exec := &recordingExecer{}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n := NewNotifier(exec, NewRepository(), clock.NewManual(at))

	if err := n.Notify(context.Background(), model.EventBookingCreated, sample, "client-1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(exec.sql, "INSERT INTO outbox_events") {
		t.Fatalf("unexpected sql %q", exec.sql)
	}
	if exec.args[0] != "appointment" || exec.args[1] != sample.ID || exec.args[2] != string(model.EventBookingCreated) {
		t.Fatalf("unexpected args %v", exec.args[:3])
	}

	var payload map[string]any
	if err := json.Unmarshal(exec.args[3].([]byte), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["end_time"] != "2024-06-03T10:30:00Z" {
		t.Fatalf("unexpected end_time %v", payload["end_time"])
	}
	if payload["occurred_at"] != "2024-06-01T12:00:00Z" || payload["recipient"] != "client-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := n.Notify(context.Background(), model.EventBookingCancelled, sample, "client-1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(buf.String(), string(model.EventBookingCancelled)) {
		t.Fatalf("event missing from log: %s", buf.String())
	}
}

func TestToMessage(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	rec := Record{
		ID:          1,
		EventID:     "e-1",
		AggregateID: sample.ID,
		EventType:   string(model.EventStatusChanged),
		Payload:     []byte(`{}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	msg := toMessage(context.Background(), rec)
	if msg.Topic != rec.EventType || string(msg.Key) != sample.ID {
		t.Fatalf("unexpected topic/key %q %q", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != "e-1" {
		t.Fatal("event_id header missing")
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != rec.Traceparent {
		t.Fatalf("expected stored traceparent to be forwarded, got %q", got)
	}
}
