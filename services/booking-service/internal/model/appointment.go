package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that occupy the shop timeline.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, true
	default:
		return "", false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ServiceDescriptor is the catalog entry as it was when the appointment was booked.
type ServiceDescriptor struct {
	Name            string
	Price           string
	DurationMinutes int
}

type Appointment struct {
	ID        string
	OwnerID   string
	Service   ServiceDescriptor
	StartTime time.Time
	Status    Status
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EndTime is always derived from the start and the booked duration.
func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.Service.DurationMinutes) * time.Minute)
}

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
