package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	minSlotDuration = 5
	maxSlotDuration = 120
)

// ScheduleService owns the weekly availability templates: creation, in-place
// update and soft deletion, all guarded by the per-doctor overlap check.
type ScheduleService struct {
	repo Repository
	log  zerolog.Logger
}

func NewScheduleService(repo Repository, log zerolog.Logger) *ScheduleService {
	return &ScheduleService{repo: repo, log: log}
}

// ScheduleInput carries the boundary representation of a schedule: clock
// values as "HH:mm" strings, dates as instants that get truncated to civil
// dates.
type ScheduleInput struct {
	DoctorID            uuid.UUID
	OrganizationID      uuid.UUID
	DayOfWeek           int
	Start               string
	End                 string
	SlotDurationMinutes int
	EffectiveFrom       time.Time
	EffectiveUntil      *time.Time
}

// ScheduleUpdate lists the fields an update may touch. Nil means unchanged.
// ClearEffectiveUntil removes the end of the effective window.
type ScheduleUpdate struct {
	DayOfWeek           *int
	Start               *string
	End                 *string
	SlotDurationMinutes *int
	EffectiveFrom       *time.Time
	EffectiveUntil      *time.Time
	ClearEffectiveUntil bool
}

func (s *ScheduleService) Create(ctx context.Context, in ScheduleInput) (*Schedule, error) {
	startMin, endMin, err := validateScheduleWindow(in.DayOfWeek, in.Start, in.End, in.SlotDurationMinutes)
	if err != nil {
		return nil, err
	}

	if err := s.checkConflict(ctx, in.DoctorID, in.DayOfWeek, startMin, endMin, uuid.Nil); err != nil {
		return nil, err
	}

	sched := &Schedule{
		ID:                  uuid.New(),
		DoctorID:            in.DoctorID,
		OrganizationID:      in.OrganizationID,
		DayOfWeek:           in.DayOfWeek,
		StartMinutes:        startMin,
		EndMinutes:          endMin,
		SlotDurationMinutes: in.SlotDurationMinutes,
		Active:              true,
		EffectiveFrom:       DateOnly(in.EffectiveFrom),
	}
	if in.EffectiveUntil != nil {
		until := DateOnly(*in.EffectiveUntil)
		sched.EffectiveUntil = &until
	}

	if err := s.repo.CreateSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.log.Info().
		Str("schedule_id", sched.ID.String()).
		Str("doctor_id", sched.DoctorID.String()).
		Int("day_of_week", sched.DayOfWeek).
		Msg("schedule created")

	return sched, nil
}

func (s *ScheduleService) Update(ctx context.Context, id uuid.UUID, upd ScheduleUpdate) (*Schedule, error) {
	sched, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}

	windowChanged := false

	if upd.DayOfWeek != nil && *upd.DayOfWeek != sched.DayOfWeek {
		sched.DayOfWeek = *upd.DayOfWeek
		windowChanged = true
	}
	if upd.Start != nil {
		startMin, err := ParseClock(*upd.Start)
		if err != nil {
			return nil, err
		}
		if startMin != sched.StartMinutes {
			sched.StartMinutes = startMin
			windowChanged = true
		}
	}
	if upd.End != nil {
		endMin, err := ParseClock(*upd.End)
		if err != nil {
			return nil, err
		}
		if endMin != sched.EndMinutes {
			sched.EndMinutes = endMin
			windowChanged = true
		}
	}
	if upd.SlotDurationMinutes != nil {
		sched.SlotDurationMinutes = *upd.SlotDurationMinutes
	}
	if upd.EffectiveFrom != nil {
		sched.EffectiveFrom = DateOnly(*upd.EffectiveFrom)
	}
	if upd.ClearEffectiveUntil {
		sched.EffectiveUntil = nil
	} else if upd.EffectiveUntil != nil {
		until := DateOnly(*upd.EffectiveUntil)
		sched.EffectiveUntil = &until
	}

	if sched.DayOfWeek < 0 || sched.DayOfWeek > 6 {
		return nil, ErrInvalidDayOfWeek
	}
	if sched.StartMinutes >= sched.EndMinutes {
		return nil, ErrInvalidTimeRange
	}
	if sched.SlotDurationMinutes < minSlotDuration || sched.SlotDurationMinutes > maxSlotDuration {
		return nil, ErrInvalidSlotDuration
	}

	if windowChanged {
		if err := s.checkConflict(ctx, sched.DoctorID, sched.DayOfWeek, sched.StartMinutes, sched.EndMinutes, sched.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	return sched, nil
}

// Delete marks the schedule inactive. Slots already generated from it are
// left alone; historical appointments keep pointing at it.
func (s *ScheduleService) Delete(ctx context.Context, id uuid.UUID) error {
	sched, err := s.getActive(ctx, id)
	if err != nil {
		return err
	}

	sched.Active = false
	if err := s.repo.UpdateSchedule(ctx, sched); err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}

	s.log.Info().Str("schedule_id", id.String()).Msg("schedule deactivated")
	return nil
}

func (s *ScheduleService) Get(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return s.getActive(ctx, id)
}

func (s *ScheduleService) ListByDoctor(ctx context.Context, doctorID uuid.UUID, includeInactive bool) ([]Schedule, error) {
	return s.repo.ListSchedulesByDoctor(ctx, doctorID, includeInactive)
}

func (s *ScheduleService) getActive(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	sched, err := s.repo.GetScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sched.Active {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// checkConflict enforces the one invariant schedules carry: no two active
// schedules of a doctor on the same weekday may overlap. Half-open windows,
// so exactly-touching bounds do not conflict. excludeID skips the record
// being updated.
func (s *ScheduleService) checkConflict(ctx context.Context, doctorID uuid.UUID, dayOfWeek, startMin, endMin int, excludeID uuid.UUID) error {
	existing, err := s.repo.ListActiveSchedulesForDay(ctx, doctorID, dayOfWeek)
	if err != nil {
		return fmt.Errorf("list schedules for conflict check: %w", err)
	}
	for _, e := range existing {
		if e.ID == excludeID {
			continue
		}
		if rangesOverlap(startMin, endMin, e.StartMinutes, e.EndMinutes) {
			return fmt.Errorf("%w: %s-%s collides with schedule %s (%s-%s)",
				ErrScheduleConflict,
				FormatClock(startMin), FormatClock(endMin),
				e.ID, FormatClock(e.StartMinutes), FormatClock(e.EndMinutes))
		}
	}
	return nil
}

func validateScheduleWindow(dayOfWeek int, start, end string, slotDuration int) (int, int, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return 0, 0, ErrInvalidDayOfWeek
	}
	startMin, err := ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	if startMin >= endMin {
		return 0, 0, ErrInvalidTimeRange
	}
	if slotDuration < minSlotDuration || slotDuration > maxSlotDuration {
		return 0, 0, ErrInvalidSlotDuration
	}
	return startMin, endMin, nil
}
