package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/scheduling"
)

const dateLayout = "2006-01-02"

// Schedules

type CreateScheduleRequest struct {
	DoctorID            string  `json:"doctor_id"`
	OrganizationID      string  `json:"organization_id"`
	DayOfWeek           int     `json:"day_of_week"`
	Start               string  `json:"start"`
	End                 string  `json:"end"`
	SlotDurationMinutes int     `json:"slot_duration_minutes"`
	EffectiveFrom       string  `json:"effective_from"`
	EffectiveUntil      *string `json:"effective_until,omitempty"`
}

type UpdateScheduleRequest struct {
	DayOfWeek           *int    `json:"day_of_week,omitempty"`
	Start               *string `json:"start,omitempty"`
	End                 *string `json:"end,omitempty"`
	SlotDurationMinutes *int    `json:"slot_duration_minutes,omitempty"`
	EffectiveFrom       *string `json:"effective_from,omitempty"`
	EffectiveUntil      *string `json:"effective_until,omitempty"`
	ClearEffectiveUntil bool    `json:"clear_effective_until,omitempty"`
}

type ScheduleResponse struct {
	ID                  uuid.UUID `json:"id"`
	DoctorID            uuid.UUID `json:"doctor_id"`
	OrganizationID      uuid.UUID `json:"organization_id"`
	DayOfWeek           int       `json:"day_of_week"`
	Start               string    `json:"start"`
	End                 string    `json:"end"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	Active              bool      `json:"active"`
	EffectiveFrom       string    `json:"effective_from"`
	EffectiveUntil      *string   `json:"effective_until,omitempty"`
}

func toScheduleResponse(s *scheduling.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:                  s.ID,
		DoctorID:            s.DoctorID,
		OrganizationID:      s.OrganizationID,
		DayOfWeek:           s.DayOfWeek,
		Start:               scheduling.FormatClock(s.StartMinutes),
		End:                 scheduling.FormatClock(s.EndMinutes),
		SlotDurationMinutes: s.SlotDurationMinutes,
		Active:              s.Active,
		EffectiveFrom:       s.EffectiveFrom.Format(dateLayout),
	}
	if s.EffectiveUntil != nil {
		u := s.EffectiveUntil.Format(dateLayout)
		resp.EffectiveUntil = &u
	}
	return resp
}

// Time slots

type GenerateSlotsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type SlotResponse struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	Date       string    `json:"date"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Status     string    `json:"status"`
}

func toSlotResponse(t *scheduling.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:         t.ID,
		ScheduleID: t.ScheduleID,
		DoctorID:   t.DoctorID,
		Date:       t.Date.Format(dateLayout),
		Start:      scheduling.FormatClock(t.StartMinutes),
		End:        scheduling.FormatClock(t.EndMinutes),
		Status:     string(t.Status),
	}
}

func toSlotResponses(slots []scheduling.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}

// Schedule exceptions

type CreateExceptionRequest struct {
	DoctorID       string  `json:"doctor_id"`
	OrganizationID string  `json:"organization_id"`
	Date           string  `json:"date"`
	Start          *string `json:"start,omitempty"`
	End            *string `json:"end,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

type ExceptionResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Start    *string   `json:"start,omitempty"`
	End      *string   `json:"end,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

func toExceptionResponse(e *scheduling.ScheduleException) ExceptionResponse {
	resp := ExceptionResponse{
		ID:       e.ID,
		DoctorID: e.DoctorID,
		Date:     e.Date.Format(dateLayout),
		Reason:   e.Reason,
	}
	if e.StartMinutes != nil {
		s := scheduling.FormatClock(*e.StartMinutes)
		resp.Start = &s
	}
	if e.EndMinutes != nil {
		s := scheduling.FormatClock(*e.EndMinutes)
		resp.End = &s
	}
	return resp
}

type ExceptionImpactResponse struct {
	Exception    ExceptionResponse             `json:"exception"`
	BlockedSlots int64                         `json:"blocked_slots"`
	Affected     []AffectedAppointmentResponse `json:"affected_appointments"`
}

type AffectedAppointmentResponse struct {
	Appointment          AppointmentResponse `json:"appointment"`
	RequiresNotification bool                `json:"requires_notification"`
}

// Appointments

type BookAppointmentRequest struct {
	PatientID      string `json:"patient_id"`
	DoctorID       string `json:"doctor_id"`
	OrganizationID string `json:"organization_id"`
	TimeSlotID     string `json:"time_slot_id"`
	ReasonForVisit string `json:"reason_for_visit,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	OrganizationID     uuid.UUID  `json:"organization_id"`
	TimeSlotID         uuid.UUID  `json:"time_slot_id"`
	EncounterID        *uuid.UUID `json:"encounter_id,omitempty"`
	Date               string     `json:"date"`
	Start              string     `json:"start"`
	End                string     `json:"end"`
	Status             string     `json:"status"`
	ReasonForVisit     string     `json:"reason_for_visit,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`
	AllowedTransitions []string   `json:"allowed_transitions"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	allowed := scheduling.AllowedTransitions(a.Status)
	next := make([]string, 0, len(allowed))
	for _, st := range allowed {
		next = append(next, string(st))
	}

	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		OrganizationID:     a.OrganizationID,
		TimeSlotID:         a.TimeSlotID,
		EncounterID:        a.EncounterID,
		Date:               a.Date.Format(dateLayout),
		Start:              scheduling.FormatClock(a.StartMinutes),
		End:                scheduling.FormatClock(a.EndMinutes),
		Status:             string(a.Status),
		ReasonForVisit:     a.ReasonForVisit,
		CancellationReason: a.CancellationReason,
		CancelledAt:        a.CancelledAt,
		CancelledBy:        a.CancelledBy,
		AllowedTransitions: next,
	}
}
