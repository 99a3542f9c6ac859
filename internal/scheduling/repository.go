package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotFilter narrows slot queries. Zero time bounds mean unbounded.
type SlotFilter struct {
	DoctorID       uuid.UUID
	OrganizationID uuid.UUID
	From           time.Time
	To             time.Time
	Status         *SlotStatus
	Limit          int
	Offset         int
}

// AppointmentFilter narrows appointment queries. Search matches the
// reason-for-visit text.
type AppointmentFilter struct {
	PatientID      *uuid.UUID
	DoctorID       *uuid.UUID
	OrganizationID *uuid.UUID
	Status         *AppointmentStatus
	From           *time.Time
	To             *time.Time
	Search         string
	SortBy         string // "date" (default) or "created_at"
	SortDesc       bool
	Limit          int
	Offset         int
}

type ExceptionFilter struct {
	DoctorID       *uuid.UUID
	OrganizationID *uuid.UUID
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

// Repository contains all persistence interactions the services need.
// Status-changing methods are conditional writes: they only apply when the
// record is still in the expected source state, which is what makes booking
// and the sweeps safe under concurrent requests.
type Repository interface {
	// Schedules
	CreateSchedule(ctx context.Context, s *Schedule) error
	UpdateSchedule(ctx context.Context, s *Schedule) error
	GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	ListSchedulesByDoctor(ctx context.Context, doctorID uuid.UUID, includeInactive bool) ([]Schedule, error)
	ListActiveSchedulesForDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]Schedule, error)

	// Time slots
	InsertSlots(ctx context.Context, slots []TimeSlot) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]TimeSlot, error)
	// UpdateSlotStatus flips a single slot from one status to another and
	// reports whether the write happened. This is the compare-and-set that
	// guards against double booking.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (bool, error)
	// UpdateSlotStatusInWindow transitions every slot of the doctor on the
	// date whose [start,end) overlaps [startMin,endMin) and is currently in
	// the from status. Returns the number of slots touched.
	UpdateSlotStatusInWindow(ctx context.Context, doctorID uuid.UUID, date time.Time, startMin, endMin int, from, to SlotStatus) (int64, error)
	// ExpireSlotsBefore moves every still-available slot dated strictly
	// before the cutoff to expired. Idempotent.
	ExpireSlotsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Schedule exceptions
	CreateException(ctx context.Context, e *ScheduleException) error
	GetExceptionByID(ctx context.Context, id uuid.UUID) (*ScheduleException, error)
	DeactivateException(ctx context.Context, id uuid.UUID) error
	ListExceptionsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]ScheduleException, error)
	ListExceptions(ctx context.Context, f ExceptionFilter) ([]ScheduleException, error)

	// Appointments
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	ListActiveAppointmentsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	// UpdateAppointmentStatus is the appointment-side conditional write:
	// it fails with ErrAppointmentNotFound when the record is no longer in
	// the from status.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetAppointmentCancelled(ctx context.Context, id uuid.UUID, from AppointmentStatus, reason string, actorID uuid.UUID, at time.Time) (*Appointment, error)
	SetAppointmentEncounter(ctx context.Context, id uuid.UUID, from AppointmentStatus, encounterID uuid.UUID) (*Appointment, error)

	// Audit log
	InsertEvent(ctx context.Context, ev EventLog) error
}

// EncounterCreator is the external clinical-record collaborator invoked when
// a visit starts. A failure here aborts the in-progress transition.
type EncounterCreator interface {
	CreateEncounter(ctx context.Context, patientID, doctorID, organizationID uuid.UUID, reasonForVisit string) (uuid.UUID, error)
}

// GenerationLocker serializes slot generation per schedule so concurrent
// requests do not race each other to the uniqueness index.
type GenerationLocker interface {
	WithScheduleLock(ctx context.Context, scheduleID uuid.UUID, fn func(ctx context.Context) error) error
}

// AvailabilityCache fronts the hot available-slots query. Implementations
// must treat every failure as a miss; the cache is never authoritative.
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, bool)
	SetAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []TimeSlot)
	Invalidate(ctx context.Context, doctorID uuid.UUID, date time.Time)
}
