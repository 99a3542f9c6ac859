package scheduling

import (
	"errors"
	"fmt"
)

// Validation failures. Callers fix their input and try again; the engine never
// retries anything on its own.
var (
	ErrInvalidClock        = errors.New("invalid clock value")
	ErrInvalidDayOfWeek    = errors.New("day of week must be between 0 and 6")
	ErrInvalidTimeRange    = errors.New("start time must be before end time")
	ErrInvalidSlotDuration = errors.New("slot duration must be between 5 and 120 minutes")
	ErrInvalidDateRange    = errors.New("from date must not be after to date")
	ErrExceptionInPast     = errors.New("exception date is in the past")
)

// Not-found conditions. Soft-deleted records and records outside the caller's
// organization surface as not found as well, so existence never leaks.
var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrSlotNotFound        = errors.New("time slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrExceptionNotFound   = errors.New("schedule exception not found")
)

// Conflicts. Retrying with the same input will fail again; the caller has to
// pick a different window or slot.
var (
	ErrScheduleConflict  = errors.New("schedule overlaps an existing active schedule")
	ErrSlotNotAvailable  = errors.New("time slot is not available")
	ErrSlotsExist        = errors.New("slots already generated for this range")
	ErrScheduleInactive  = errors.New("schedule is inactive")
	ErrAppointmentInPast = errors.New("appointment time is in the past")
)

// ErrInvalidTransition is the sentinel every illegal status change matches
// via errors.Is. The concrete error carries the states involved.
var ErrInvalidTransition = errors.New("invalid appointment status transition")

type InvalidTransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid appointment status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
