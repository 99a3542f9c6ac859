package scheduling

// The appointment lifecycle as data. Completed, cancelled and no-show are
// terminal: they map to nothing.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// CanTransition reports whether moving an appointment from one status to
// another is legal. Every mutating operation re-checks this immediately
// before writing; it is the single source of truth for the lifecycle.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
// Useful for API-level discovery; the returned slice must not be mutated.
func AllowedTransitions(from AppointmentStatus) []AppointmentStatus {
	return appointmentTransitions[from]
}

// checkTransition wraps CanTransition into the error every service operation
// returns for an illegal change.
func checkTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
