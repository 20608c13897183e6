package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	OwnerID         string `json:"owner_id"`
	Recipient       string `json:"recipient"`
	ServiceName     string `json:"service_name"`
	ServicePrice    string `json:"service_price"`
	DurationMinutes int    `json:"duration_minutes"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

// NewAppointmentEvent snapshots appt into an outbox envelope.
func NewAppointmentEvent(evt model.Event, appt model.Appointment, recipient string, at time.Time) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   appt.ID,
		OwnerID:         appt.OwnerID,
		Recipient:       recipient,
		ServiceName:     appt.Service.Name,
		ServicePrice:    appt.Service.Price,
		DurationMinutes: appt.Service.DurationMinutes,
		StartTime:       appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:         appt.EndTime().UTC().Format(time.RFC3339),
		Status:          string(appt.Status),
		Notes:           appt.Notes,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     string(evt),
		Payload:       payload,
	}, nil
}
