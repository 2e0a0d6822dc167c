package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/care-coordination/internal/authz"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotUnavailable     = errors.New("selected time slot is no longer available")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid appointment request")

	// ErrUnauthorized is the policy sentinel, re-exported for callers of this package.
	ErrUnauthorized = authz.ErrUnauthorized
)

// SlotUnavailableError names the slot that could not be reserved.
type SlotUnavailableError struct {
	Key    string
	Reason string // missing, booked, busy
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s unavailable: %s", e.Key, e.Reason)
}

func (e *SlotUnavailableError) Unwrap() error { return ErrSlotUnavailable }

// TransitionError reports a status change that the lifecycle does not allow.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
