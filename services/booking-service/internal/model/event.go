package model

// Event names a booking notification. The value doubles as the Kafka topic.
type Event string

const (
	EventBookingCreated     Event = "booking.appointment.created.v1"
	EventBookingCancelled   Event = "booking.appointment.cancelled.v1"
	EventBookingRescheduled Event = "booking.appointment.rescheduled.v1"
	EventStatusChanged      Event = "booking.appointment.status_changed.v1"
)
