package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/policy"
)

var (
	// ErrNotFound also covers appointments that exist but are not visible to the caller.
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("not allowed for this caller")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrBusy means concurrent writers kept winning; the caller may retry.
	ErrBusy              = errors.New("appointment is being modified concurrently, retry")
)

// ValidationError is malformed input the caller can correct.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// RejectionError is a booking refused by the shop rules or by an overlap. Two rejections match
// under errors.Is when their reasons are equal, so the sentinels below work as targets.
type RejectionError struct {
	Reason       policy.Reason
	ConflictWith string
}

func (e *RejectionError) Error() string {
	if e.Reason == conflict.ReasonOverlap {
		return "slot no longer available"
	}
	return e.Reason.Message()
}

func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Reason == e.Reason
}

// Overlap distinguishes timeline conflicts from calendar policy rejections.
func (e *RejectionError) Overlap() bool {
	return e.Reason == conflict.ReasonOverlap
}

var (
	ErrInThePast     = &RejectionError{Reason: policy.ReasonInThePast}
	ErrClosedDay     = &RejectionError{Reason: policy.ReasonClosedDay}
	ErrBeforeOpening = &RejectionError{Reason: policy.ReasonBeforeOpening}
	ErrAfterClosing  = &RejectionError{Reason: policy.ReasonAfterClosing}
	ErrDuringBreak   = &RejectionError{Reason: policy.ReasonDuringBreak}
	ErrOverlap       = &RejectionError{Reason: conflict.ReasonOverlap}
)

type TransitionError struct {
	From model.Status
	To   model.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
