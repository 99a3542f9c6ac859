package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
	SlotExpired   SlotStatus = "expired"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusCheckedIn  AppointmentStatus = "checked_in"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Actor is the authenticated identity a mutating call runs as. The engine
// trusts it blindly and uses it only for audit fields.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Schedule is a doctor's recurring weekly availability template for a single
// day of the week. Times are minutes since midnight; HH:mm only exists at the
// API boundary.
type Schedule struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	OrganizationID      uuid.UUID
	DayOfWeek           int // 0=Sunday .. 6=Saturday
	StartMinutes        int
	EndMinutes          int
	SlotDurationMinutes int
	Active              bool
	EffectiveFrom       time.Time // date only, UTC midnight
	EffectiveUntil      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TimeSlot is one bookable unit derived from a Schedule. The tuple
// (doctor, date, start) is unique; the persistence layer enforces it.
type TimeSlot struct {
	ID             uuid.UUID
	ScheduleID     uuid.UUID
	DoctorID       uuid.UUID
	OrganizationID uuid.UUID
	Date           time.Time // date only, UTC midnight
	StartMinutes   int
	EndMinutes     int
	Status         SlotStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleException is a one-off blackout on a specific date. Nil start and
// end means the whole day is blocked.
type ScheduleException struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	OrganizationID uuid.UUID
	Date           time.Time
	StartMinutes   *int
	EndMinutes     *int
	Reason         string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Appointment is a patient's claim on exactly one TimeSlot. Date and times
// are copied from the slot at booking and never change afterwards.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	OrganizationID     uuid.UUID
	TimeSlotID         uuid.UUID
	EncounterID        *uuid.UUID
	Date               time.Time
	StartMinutes       int
	EndMinutes         int
	Status             AppointmentStatus
	ReasonForVisit     string
	CancellationReason *string
	CancelledAt        *time.Time
	CancelledBy        *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StartsAt resolves the appointment's wall-clock start instant.
func (a *Appointment) StartsAt() time.Time {
	return a.Date.Add(time.Duration(a.StartMinutes) * time.Minute)
}

// AffectedAppointment is one entry of the impact report returned by exception
// creation. Delivery of the notification is the caller's problem.
type AffectedAppointment struct {
	Appointment          Appointment
	RequiresNotification bool
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
