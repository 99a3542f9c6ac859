package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventSlotsBlocked   = "SLOTS_BLOCKED"
	EventSlotsUnblocked = "SLOTS_UNBLOCKED"
)

// ExceptionService manages one-off blackouts. Creating one blocks the free
// slots in its window and reports the appointments a human has to
// renegotiate; it deliberately cancels nothing on its own.
type ExceptionService struct {
	repo  Repository
	cache AvailabilityCache
	log   zerolog.Logger
	now   func() time.Time
}

func NewExceptionService(repo Repository, cache AvailabilityCache, log zerolog.Logger) *ExceptionService {
	return &ExceptionService{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

type ExceptionInput struct {
	DoctorID       uuid.UUID
	OrganizationID uuid.UUID
	Date           time.Time
	Start          *string // "HH:mm", nil with End nil = whole day
	End            *string
	Reason         string
}

// ExceptionImpact is what exception creation hands back: the persisted rule,
// how many free slots it blocked, and the active appointments it collides
// with, each flagged for notification.
type ExceptionImpact struct {
	Exception    *ScheduleException
	BlockedSlots int64
	Affected     []AffectedAppointment
}

func (s *ExceptionService) Create(ctx context.Context, in ExceptionInput, actor Actor) (*ExceptionImpact, error) {
	var startMin, endMin *int
	if in.Start != nil {
		v, err := ParseClock(*in.Start)
		if err != nil {
			return nil, err
		}
		startMin = &v
	}
	if in.End != nil {
		v, err := ParseClock(*in.End)
		if err != nil {
			return nil, err
		}
		endMin = &v
	}
	if startMin != nil && endMin != nil && *startMin >= *endMin {
		return nil, ErrInvalidTimeRange
	}

	date := DateOnly(in.Date)
	if date.Before(DateOnly(s.now())) {
		return nil, ErrExceptionInPast
	}

	ex := &ScheduleException{
		ID:             uuid.New(),
		DoctorID:       in.DoctorID,
		OrganizationID: in.OrganizationID,
		Date:           date,
		StartMinutes:   startMin,
		EndMinutes:     endMin,
		Reason:         in.Reason,
		Active:         true,
	}

	// Impact report first: the caller gets the collision list even though
	// the engine never cancels anything itself.
	affected, err := s.collectAffected(ctx, ex)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateException(ctx, ex); err != nil {
		return nil, fmt.Errorf("create exception: %w", err)
	}

	winStart, winEnd := ex.Window()
	blocked, err := s.repo.UpdateSlotStatusInWindow(ctx, ex.DoctorID, ex.Date, winStart, winEnd, SlotAvailable, SlotBlocked)
	if err != nil {
		return nil, fmt.Errorf("block slots: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, ex.DoctorID, ex.Date)
	}

	s.logEvent(ctx, EventSlotsBlocked, actor, map[string]any{
		"exception_id": ex.ID.String(),
		"doctor_id":    ex.DoctorID.String(),
		"date":         ex.Date.Format("2006-01-02"),
		"blocked":      blocked,
		"affected":     len(affected),
	})

	s.log.Info().
		Str("exception_id", ex.ID.String()).
		Int64("blocked_slots", blocked).
		Int("affected_appointments", len(affected)).
		Msg("schedule exception created")

	return &ExceptionImpact{Exception: ex, BlockedSlots: blocked, Affected: affected}, nil
}

// Delete retires the exception and re-opens the slots it had blocked. Slots
// consumed in the meantime stay as they are.
func (s *ExceptionService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	ex, err := s.repo.GetExceptionByID(ctx, id)
	if err != nil {
		return err
	}
	if !ex.Active {
		return ErrExceptionNotFound
	}

	if err := s.repo.DeactivateException(ctx, id); err != nil {
		return fmt.Errorf("deactivate exception: %w", err)
	}

	winStart, winEnd := ex.Window()
	unblocked, err := s.repo.UpdateSlotStatusInWindow(ctx, ex.DoctorID, ex.Date, winStart, winEnd, SlotBlocked, SlotAvailable)
	if err != nil {
		return fmt.Errorf("unblock slots: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, ex.DoctorID, ex.Date)
	}

	s.logEvent(ctx, EventSlotsUnblocked, actor, map[string]any{
		"exception_id": ex.ID.String(),
		"doctor_id":    ex.DoctorID.String(),
		"date":         ex.Date.Format("2006-01-02"),
		"unblocked":    unblocked,
	})

	return nil
}

func (s *ExceptionService) Get(ctx context.Context, id uuid.UUID) (*ScheduleException, error) {
	ex, err := s.repo.GetExceptionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ex.Active {
		return nil, ErrExceptionNotFound
	}
	return ex, nil
}

func (s *ExceptionService) List(ctx context.Context, f ExceptionFilter) ([]ScheduleException, error) {
	return s.repo.ListExceptions(ctx, f)
}

// collectAffected finds the scheduled and checked-in appointments on the
// exception date whose time range intersects the blackout window.
func (s *ExceptionService) collectAffected(ctx context.Context, ex *ScheduleException) ([]AffectedAppointment, error) {
	appts, err := s.repo.ListActiveAppointmentsForDate(ctx, ex.DoctorID, ex.Date)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}

	wholeDay := ex.StartMinutes == nil && ex.EndMinutes == nil
	winStart, winEnd := ex.Window()

	var affected []AffectedAppointment
	for _, a := range appts {
		if wholeDay || rangesOverlap(a.StartMinutes, a.EndMinutes, winStart, winEnd) {
			affected = append(affected, AffectedAppointment{
				Appointment:          a,
				RequiresNotification: true,
			})
		}
	}
	return affected, nil
}

func (s *ExceptionService) logEvent(ctx context.Context, eventType string, actor Actor, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}
	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.now(),
	}
	if actor.ID != uuid.Nil {
		actorID := actor.ID
		ev.ActorID = &actorID
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("insert event log")
	}
}
