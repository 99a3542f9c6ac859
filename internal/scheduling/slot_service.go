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
	EventSlotsGenerated = "SLOTS_GENERATED"
	EventSlotsExpired   = "SLOTS_EXPIRED"
)

// SlotService expands schedules into bookable slots, runs the expiry sweep
// and serves slot queries. Locker and cache are optional; without them
// generation still relies on the uniqueness index and queries go straight to
// the repository.
type SlotService struct {
	repo   Repository
	locker GenerationLocker
	cache  AvailabilityCache
	log    zerolog.Logger
	now    func() time.Time
}

func NewSlotService(repo Repository, locker GenerationLocker, cache AvailabilityCache, log zerolog.Logger) *SlotService {
	return &SlotService{
		repo:   repo,
		locker: locker,
		cache:  cache,
		log:    log,
		now:    time.Now,
	}
}

// Generate expands the schedule into AVAILABLE slots over [from, to]
// inclusive. Re-generating an already populated range fails with
// ErrSlotsExist from the persistence boundary, never silently duplicates.
func (s *SlotService) Generate(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	sched, err := s.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !sched.Active {
		return nil, ErrScheduleInactive
	}

	fromDate := DateOnly(from)
	toDate := DateOnly(to)
	if fromDate.After(toDate) {
		return nil, ErrInvalidDateRange
	}

	var created []TimeSlot
	work := func(ctx context.Context) error {
		slots, err := s.buildSlots(ctx, sched, fromDate, toDate)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}
		if err := s.repo.InsertSlots(ctx, slots); err != nil {
			return err
		}
		created = slots
		return nil
	}

	if s.locker != nil {
		err = s.locker.WithScheduleLock(ctx, sched.ID, work)
	} else {
		err = work(ctx)
	}
	if err != nil {
		return nil, err
	}

	for _, d := range slotDates(created) {
		s.invalidate(ctx, sched.DoctorID, d)
	}

	s.logEvent(ctx, EventSlotsGenerated, map[string]any{
		"schedule_id": sched.ID.String(),
		"doctor_id":   sched.DoctorID.String(),
		"from":        fromDate.Format("2006-01-02"),
		"to":          toDate.Format("2006-01-02"),
		"count":       len(created),
	})

	s.log.Info().
		Str("schedule_id", sched.ID.String()).
		Int("count", len(created)).
		Msg("slots generated")

	return created, nil
}

// buildSlots walks each date in the range, keeps the ones matching the
// schedule's weekday and effective window, then steps through the day's time
// window suppressing anything an exception covers. A trailing slot that
// would overrun the window is never emitted.
func (s *SlotService) buildSlots(ctx context.Context, sched *Schedule, fromDate, toDate time.Time) ([]TimeSlot, error) {
	var slots []TimeSlot

	for d := fromDate; !d.After(toDate); d = d.AddDate(0, 0, 1) {
		if int(d.Weekday()) != sched.DayOfWeek {
			continue
		}
		if d.Before(sched.EffectiveFrom) {
			continue
		}
		if sched.EffectiveUntil != nil && d.After(*sched.EffectiveUntil) {
			continue
		}

		exceptions, err := s.repo.ListExceptionsForDate(ctx, sched.DoctorID, d)
		if err != nil {
			return nil, fmt.Errorf("list exceptions for %s: %w", d.Format("2006-01-02"), err)
		}

		dur := sched.SlotDurationMinutes
		for m := sched.StartMinutes; m+dur <= sched.EndMinutes; m += dur {
			if coveredByException(exceptions, m, m+dur) {
				continue
			}
			slots = append(slots, TimeSlot{
				ID:             uuid.New(),
				ScheduleID:     sched.ID,
				DoctorID:       sched.DoctorID,
				OrganizationID: sched.OrganizationID,
				Date:           d,
				StartMinutes:   m,
				EndMinutes:     m + dur,
				Status:         SlotAvailable,
			})
		}
	}

	return slots, nil
}

// ExpirePastSlots is the periodic sweep: every slot dated before today that
// is still available moves to expired. Booked slots are never touched, so
// the sweep is safe to run concurrently with booking and with itself.
func (s *SlotService) ExpirePastSlots(ctx context.Context) (int64, error) {
	cutoff := DateOnly(s.now())
	n, err := s.repo.ExpireSlotsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire slots: %w", err)
	}
	if n > 0 {
		s.logEvent(ctx, EventSlotsExpired, map[string]any{
			"cutoff": cutoff.Format("2006-01-02"),
			"count":  n,
		})
	}
	s.log.Info().Int64("count", n).Msg("expiry sweep complete")
	return n, nil
}

func (s *SlotService) Get(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return s.repo.GetSlotByID(ctx, id)
}

func (s *SlotService) List(ctx context.Context, f SlotFilter) ([]TimeSlot, error) {
	return s.repo.ListSlots(ctx, f)
}

// ListAvailable serves the booking page: available slots for one doctor on
// one date, cache first.
func (s *SlotService) ListAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	day := DateOnly(date)

	if s.cache != nil {
		if slots, ok := s.cache.GetAvailable(ctx, doctorID, day); ok {
			return slots, nil
		}
	}

	status := SlotAvailable
	slots, err := s.repo.ListSlots(ctx, SlotFilter{
		DoctorID: doctorID,
		From:     day,
		To:       day,
		Status:   &status,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetAvailable(ctx, doctorID, day, slots)
	}
	return slots, nil
}

func (s *SlotService) invalidate(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, doctorID, date)
	}
}

func (s *SlotService) logEvent(ctx context.Context, eventType string, payload map[string]any) {
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
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("insert event log")
	}
}

// coveredByException reports whether [startMin, endMin) intersects any
// active exception. An exception without bounds blacks out the whole day.
func coveredByException(exceptions []ScheduleException, startMin, endMin int) bool {
	for _, ex := range exceptions {
		if !ex.Active {
			continue
		}
		if ex.StartMinutes == nil && ex.EndMinutes == nil {
			return true
		}
		exStart, exEnd := ex.Window()
		if rangesOverlap(startMin, endMin, exStart, exEnd) {
			return true
		}
	}
	return false
}

// Window resolves the exception's blocking window in minutes. A missing
// bound extends to the corresponding edge of the day (00:00 / 23:59).
func (e *ScheduleException) Window() (int, int) {
	start, end := 0, minutesPerDay-1
	if e.StartMinutes != nil {
		start = *e.StartMinutes
	}
	if e.EndMinutes != nil {
		end = *e.EndMinutes
	}
	return start, end
}

func slotDates(slots []TimeSlot) []time.Time {
	var dates []time.Time
	seen := make(map[time.Time]struct{})
	for _, sl := range slots {
		if _, ok := seen[sl.Date]; ok {
			continue
		}
		seen[sl.Date] = struct{}{}
		dates = append(dates, sl.Date)
	}
	return dates
}
