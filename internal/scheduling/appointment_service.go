package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCheckedIn = "APPOINTMENT_CHECKED_IN"
	EventVisitStarted         = "VISIT_STARTED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

// DefaultCancelCutoff separates early from late cancellation: starts further
// out than this release their slot, anything closer forfeits it.
const DefaultCancelCutoff = 24 * time.Hour

// AppointmentService drives appointments through their lifecycle. It is the
// only writer of slot status once a slot has been consumed.
type AppointmentService struct {
	repo         Repository
	encounters   EncounterCreator
	cache        AvailabilityCache
	cancelCutoff time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

func NewAppointmentService(repo Repository, encounters EncounterCreator, cache AvailabilityCache, cancelCutoff time.Duration, log zerolog.Logger) *AppointmentService {
	if cancelCutoff <= 0 {
		cancelCutoff = DefaultCancelCutoff
	}
	return &AppointmentService{
		repo:         repo,
		encounters:   encounters,
		cache:        cache,
		cancelCutoff: cancelCutoff,
		log:          log,
		now:          time.Now,
	}
}

type BookingInput struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	OrganizationID uuid.UUID
	TimeSlotID     uuid.UUID
	ReasonForVisit string
}

// Book claims an available slot for a patient. The slot is flipped to booked
// with a conditional write before the appointment row exists; under two
// concurrent requests exactly one write lands and the loser gets
// ErrSlotNotAvailable.
func (s *AppointmentService) Book(ctx context.Context, in BookingInput, actor Actor) (*Appointment, error) {
	slot, err := s.repo.GetSlotByID(ctx, in.TimeSlotID)
	if err != nil {
		return nil, err
	}
	// A slot outside the caller's doctor or organization does not exist as
	// far as the caller is concerned.
	if slot.DoctorID != in.DoctorID || slot.OrganizationID != in.OrganizationID {
		return nil, ErrSlotNotFound
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotNotAvailable
	}

	booked, err := s.repo.UpdateSlotStatus(ctx, slot.ID, SlotAvailable, SlotBooked)
	if err != nil {
		return nil, fmt.Errorf("book slot: %w", err)
	}
	if !booked {
		return nil, ErrSlotNotAvailable
	}

	appt := &Appointment{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		DoctorID:       slot.DoctorID,
		OrganizationID: slot.OrganizationID,
		TimeSlotID:     slot.ID,
		Date:           slot.Date,
		StartMinutes:   slot.StartMinutes,
		EndMinutes:     slot.EndMinutes,
		Status:         StatusScheduled,
		ReasonForVisit: in.ReasonForVisit,
	}

	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		// Hand the slot back so a failed insert does not strand it.
		if _, relErr := s.repo.UpdateSlotStatus(ctx, slot.ID, SlotBooked, SlotAvailable); relErr != nil {
			s.log.Error().Err(relErr).Str("slot_id", slot.ID.String()).Msg("release slot after failed booking")
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.invalidate(ctx, slot.DoctorID, slot.Date)
	s.logEvent(ctx, appt.ID, EventAppointmentBooked, actor, map[string]any{
		"slot_id":    slot.ID.String(),
		"patient_id": in.PatientID.String(),
		"date":       slot.Date.Format("2006-01-02"),
		"start":      FormatClock(slot.StartMinutes),
	})

	return appt, nil
}

// Cancel applies the 24-hour policy: an early cancellation releases the slot
// back to available, a late one forfeits it for good. Past appointments
// cannot be cancelled at all.
func (s *AppointmentService) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusCancelled); err != nil {
		return nil, err
	}

	now := s.now()
	startsAt := appt.StartsAt()
	if startsAt.Before(now) {
		return nil, ErrAppointmentInPast
	}
	early := startsAt.After(now.Add(s.cancelCutoff))

	updated, err := s.repo.SetAppointmentCancelled(ctx, id, appt.Status, reason, actor.ID, now)
	if err != nil {
		return nil, s.casFailure(ctx, id, StatusCancelled, err)
	}

	if early {
		released, err := s.repo.UpdateSlotStatus(ctx, appt.TimeSlotID, SlotBooked, SlotAvailable)
		if err != nil {
			s.log.Error().Err(err).Str("slot_id", appt.TimeSlotID.String()).Msg("release slot on early cancellation")
		} else if released {
			s.invalidate(ctx, appt.DoctorID, appt.Date)
		}
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, actor, map[string]any{
		"reason": reason,
		"early":  early,
	})

	return updated, nil
}

func (s *AppointmentService) CheckIn(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusCheckedIn); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCheckedIn)
	if err != nil {
		return nil, s.casFailure(ctx, id, StatusCheckedIn, err)
	}

	s.logEvent(ctx, id, EventAppointmentCheckedIn, actor, map[string]any{})
	return updated, nil
}

// StartVisit creates the clinical encounter and moves the appointment to
// in-progress in that order; if the collaborator refuses, the appointment
// stays checked in.
func (s *AppointmentService) StartVisit(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusInProgress); err != nil {
		return nil, err
	}

	encounterID, err := s.encounters.CreateEncounter(ctx, appt.PatientID, appt.DoctorID, appt.OrganizationID, appt.ReasonForVisit)
	if err != nil {
		return nil, fmt.Errorf("create encounter: %w", err)
	}

	updated, err := s.repo.SetAppointmentEncounter(ctx, id, appt.Status, encounterID)
	if err != nil {
		return nil, s.casFailure(ctx, id, StatusInProgress, err)
	}

	s.logEvent(ctx, id, EventVisitStarted, actor, map[string]any{
		"encounter_id": encounterID.String(),
	})
	return updated, nil
}

func (s *AppointmentService) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusCompleted); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCompleted)
	if err != nil {
		return nil, s.casFailure(ctx, id, StatusCompleted, err)
	}

	s.logEvent(ctx, id, EventAppointmentCompleted, actor, map[string]any{})
	return updated, nil
}

// MarkNoShow records the patient never turned up. The slot stays booked,
// forfeited the same way as a late cancellation.
func (s *AppointmentService) MarkNoShow(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusNoShow); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusNoShow)
	if err != nil {
		return nil, s.casFailure(ctx, id, StatusNoShow, err)
	}

	s.logEvent(ctx, id, EventAppointmentNoShow, actor, map[string]any{})
	return updated, nil
}

func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *AppointmentService) List(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListAppointments(ctx, f)
}

// casFailure resolves a lost conditional write. When the record moved under
// us the current state names the transition that actually failed; anything
// else is passed through.
func (s *AppointmentService) casFailure(ctx context.Context, id uuid.UUID, to AppointmentStatus, err error) error {
	if !errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	cur, getErr := s.repo.GetAppointmentByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	return &InvalidTransitionError{From: cur.Status, To: to}
}

func (s *AppointmentService) invalidate(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, doctorID, date)
	}
}

func (s *AppointmentService) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, actor Actor, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if actor.ID != uuid.Nil {
		actorID := actor.ID
		ev.ActorID = &actorID
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appointmentID.String()).Msg("insert event log")
	}
}
