package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded Repository for tests and local runs.
// The conditional writes happen under the lock, so the compare-and-set
// semantics match the SQL implementation.
type MemoryRepository struct {
	mu sync.RWMutex

	schedules    map[uuid.UUID]Schedule
	slots        map[uuid.UUID]TimeSlot
	slotKeys     map[string]uuid.UUID // doctor|date|start -> slot id
	exceptions   map[uuid.UUID]ScheduleException
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		schedules:    make(map[uuid.UUID]Schedule),
		slots:        make(map[uuid.UUID]TimeSlot),
		slotKeys:     make(map[string]uuid.UUID),
		exceptions:   make(map[uuid.UUID]ScheduleException),
		appointments: make(map[uuid.UUID]Appointment),
		nextEventID:  1,
	}
}

func slotKey(doctorID uuid.UUID, date time.Time, startMin int) string {
	return doctorID.String() + "|" + date.Format("2006-01-02") + "|" + FormatClock(startMin)
}

// Schedules

func (m *MemoryRepository) CreateSchedule(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.schedules[s.ID] = *s
	return nil
}

func (m *MemoryRepository) UpdateSchedule(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[s.ID]; !ok {
		return ErrScheduleNotFound
	}
	s.UpdatedAt = time.Now()
	m.schedules[s.ID] = *s
	return nil
}

func (m *MemoryRepository) GetScheduleByID(_ context.Context, id uuid.UUID) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) ListSchedulesByDoctor(_ context.Context, doctorID uuid.UUID, includeInactive bool) ([]Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Schedule
	for _, s := range m.schedules {
		if s.DoctorID != doctorID {
			continue
		}
		if !s.Active && !includeInactive {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DayOfWeek != result[j].DayOfWeek {
			return result[i].DayOfWeek < result[j].DayOfWeek
		}
		return result[i].StartMinutes < result[j].StartMinutes
	})
	return result, nil
}

func (m *MemoryRepository) ListActiveSchedulesForDay(_ context.Context, doctorID uuid.UUID, dayOfWeek int) ([]Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Schedule
	for _, s := range m.schedules {
		if s.DoctorID == doctorID && s.DayOfWeek == dayOfWeek && s.Active {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartMinutes < result[j].StartMinutes
	})
	return result, nil
}

// Time slots

func (m *MemoryRepository) InsertSlots(_ context.Context, slots []TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// All or nothing, like the transactional SQL path.
	for _, sl := range slots {
		if _, exists := m.slotKeys[slotKey(sl.DoctorID, sl.Date, sl.StartMinutes)]; exists {
			return ErrSlotsExist
		}
	}

	now := time.Now()
	for _, sl := range slots {
		sl.CreatedAt = now
		sl.UpdatedAt = now
		m.slots[sl.ID] = sl
		m.slotKeys[slotKey(sl.DoctorID, sl.Date, sl.StartMinutes)] = sl.ID
	}
	return nil
}

func (m *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sl, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &sl, nil
}

func (m *MemoryRepository) ListSlots(_ context.Context, f SlotFilter) ([]TimeSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []TimeSlot
	for _, sl := range m.slots {
		if sl.DoctorID != f.DoctorID {
			continue
		}
		if f.OrganizationID != uuid.Nil && sl.OrganizationID != f.OrganizationID {
			continue
		}
		if !f.From.IsZero() && sl.Date.Before(DateOnly(f.From)) {
			continue
		}
		if !f.To.IsZero() && sl.Date.After(DateOnly(f.To)) {
			continue
		}
		if f.Status != nil && sl.Status != *f.Status {
			continue
		}
		result = append(result, sl)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].StartMinutes < result[j].StartMinutes
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (m *MemoryRepository) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[id]
	if !ok || sl.Status != from {
		return false, nil
	}
	sl.Status = to
	sl.UpdatedAt = time.Now()
	m.slots[id] = sl
	return true, nil
}

func (m *MemoryRepository) UpdateSlotStatusInWindow(_ context.Context, doctorID uuid.UUID, date time.Time, startMin, endMin int, from, to SlotStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := DateOnly(date)
	var n int64
	for id, sl := range m.slots {
		if sl.DoctorID != doctorID || !sl.Date.Equal(day) || sl.Status != from {
			continue
		}
		if !rangesOverlap(sl.StartMinutes, sl.EndMinutes, startMin, endMin) {
			continue
		}
		sl.Status = to
		sl.UpdatedAt = time.Now()
		m.slots[id] = sl
		n++
	}
	return n, nil
}

func (m *MemoryRepository) ExpireSlotsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := DateOnly(cutoff)
	var n int64
	for id, sl := range m.slots {
		if sl.Status != SlotAvailable || !sl.Date.Before(day) {
			continue
		}
		sl.Status = SlotExpired
		sl.UpdatedAt = time.Now()
		m.slots[id] = sl
		n++
	}
	return n, nil
}

// Schedule exceptions

func (m *MemoryRepository) CreateException(_ context.Context, e *ScheduleException) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	m.exceptions[e.ID] = *e
	return nil
}

func (m *MemoryRepository) GetExceptionByID(_ context.Context, id uuid.UUID) (*ScheduleException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.exceptions[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	return &e, nil
}

func (m *MemoryRepository) DeactivateException(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.exceptions[id]
	if !ok || !e.Active {
		return ErrExceptionNotFound
	}
	e.Active = false
	e.UpdatedAt = time.Now()
	m.exceptions[id] = e
	return nil
}

func (m *MemoryRepository) ListExceptionsForDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]ScheduleException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := DateOnly(date)
	var result []ScheduleException
	for _, e := range m.exceptions {
		if e.DoctorID == doctorID && e.Date.Equal(day) && e.Active {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryRepository) ListExceptions(_ context.Context, f ExceptionFilter) ([]ScheduleException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ScheduleException
	for _, e := range m.exceptions {
		if !e.Active {
			continue
		}
		if f.DoctorID != nil && e.DoctorID != *f.DoctorID {
			continue
		}
		if f.OrganizationID != nil && e.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.From != nil && e.Date.Before(DateOnly(*f.From)) {
			continue
		}
		if f.To != nil && e.Date.After(DateOnly(*f.To)) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return paginate(result, f.Limit, f.Offset), nil
}

// Appointments

func (m *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Appointment
	for _, a := range m.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.OrganizationID != nil && a.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.From != nil && a.Date.Before(DateOnly(*f.From)) {
			continue
		}
		if f.To != nil && a.Date.After(DateOnly(*f.To)) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(a.ReasonForVisit), strings.ToLower(f.Search)) {
			continue
		}
		result = append(result, a)
	}

	sort.Slice(result, func(i, j int) bool {
		var less bool
		if f.SortBy == "created_at" {
			less = result[i].CreatedAt.Before(result[j].CreatedAt)
		} else if !result[i].Date.Equal(result[j].Date) {
			less = result[i].Date.Before(result[j].Date)
		} else {
			less = result[i].StartMinutes < result[j].StartMinutes
		}
		if f.SortDesc {
			return !less
		}
		return less
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (m *MemoryRepository) ListActiveAppointmentsForDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := DateOnly(date)
	var result []Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Date.Equal(day) {
			continue
		}
		if a.Status != StatusScheduled && a.Status != StatusCheckedIn {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartMinutes < result[j].StartMinutes
	})
	return result, nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) SetAppointmentCancelled(_ context.Context, id uuid.UUID, from AppointmentStatus, reason string, actorID uuid.UUID, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	a.CancellationReason = &reason
	a.CancelledAt = &at
	a.CancelledBy = &actorID
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) SetAppointmentEncounter(_ context.Context, id uuid.UUID, from AppointmentStatus, encounterID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusInProgress
	a.EncounterID = &encounterID
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

// Audit log

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = m.nextEventID
	m.nextEventID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the audit log, oldest first.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
