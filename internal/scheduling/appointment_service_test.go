package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubEncounters struct {
	err     error
	created int
	lastID  uuid.UUID
}

func (s *stubEncounters) CreateEncounter(_ context.Context, _, _, _ uuid.UUID, _ string) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.created++
	s.lastID = uuid.New()
	return s.lastID, nil
}

type appointmentFixture struct {
	svc        *AppointmentService
	repo       *MemoryRepository
	encounters *stubEncounters
	doctorID   uuid.UUID
	orgID      uuid.UUID
	patientID  uuid.UUID
}

// Clock is pinned to Monday 08:00 UTC so cancellation cutoffs are exact.
func newAppointmentFixture() *appointmentFixture {
	repo := NewMemoryRepository()
	enc := &stubEncounters{}
	svc := NewAppointmentService(repo, enc, nil, DefaultCancelCutoff, zerolog.Nop())
	svc.now = func() time.Time { return testMonday.Add(8 * time.Hour) }
	return &appointmentFixture{
		svc:        svc,
		repo:       repo,
		encounters: enc,
		doctorID:   uuid.New(),
		orgID:      uuid.New(),
		patientID:  uuid.New(),
	}
}

func (f *appointmentFixture) slot(t *testing.T, date time.Time, startMin int) TimeSlot {
	t.Helper()
	sl := TimeSlot{
		ID:             uuid.New(),
		ScheduleID:     uuid.New(),
		DoctorID:       f.doctorID,
		OrganizationID: f.orgID,
		Date:           DateOnly(date),
		StartMinutes:   startMin,
		EndMinutes:     startMin + 30,
		Status:         SlotAvailable,
	}
	if err := f.repo.InsertSlots(context.Background(), []TimeSlot{sl}); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return sl
}

func (f *appointmentFixture) book(t *testing.T, slot TimeSlot) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), BookingInput{
		PatientID:      f.patientID,
		DoctorID:       slot.DoctorID,
		OrganizationID: slot.OrganizationID,
		TimeSlotID:     slot.ID,
		ReasonForVisit: "annual checkup",
	}, Actor{ID: f.patientID, Role: "patient"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return appt
}

func TestBook(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testNextMonday, 540)
	appt := f.book(t, slot)

	if appt.Status != StatusScheduled {
		t.Fatalf("status = %s, want scheduled", appt.Status)
	}
	if appt.TimeSlotID != slot.ID || appt.DoctorID != f.doctorID {
		t.Fatalf("appointment does not reference the booked slot: %+v", appt)
	}
	if !appt.Date.Equal(slot.Date) || appt.StartMinutes != 540 || appt.EndMinutes != 570 {
		t.Fatalf("denormalized times = %v %d-%d, want slot values", appt.Date, appt.StartMinutes, appt.EndMinutes)
	}

	got, err := f.repo.GetSlotByID(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if got.Status != SlotBooked {
		t.Fatalf("slot status = %s after booking, want booked", got.Status)
	}

	events := f.repo.Events()
	if len(events) != 1 || events[0].EventType != EventAppointmentBooked {
		t.Fatalf("events = %+v, want one APPOINTMENT_BOOKED", events)
	}
	if events[0].ActorID == nil || *events[0].ActorID != f.patientID {
		t.Fatalf("event actor = %v, want %s", events[0].ActorID, f.patientID)
	}
}

func TestBookUnavailableSlot(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testNextMonday, 540)
	f.book(t, slot)

	_, err := f.svc.Book(ctx, BookingInput{
		PatientID:      uuid.New(),
		DoctorID:       f.doctorID,
		OrganizationID: f.orgID,
		TimeSlotID:     slot.ID,
	}, Actor{})
	if !errors.Is(err, ErrSlotNotAvailable) {
		t.Fatalf("double booking: got %v, want ErrSlotNotAvailable", err)
	}
}

func TestBookScopeMismatchReadsAsNotFound(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testNextMonday, 540)

	in := BookingInput{
		PatientID:      f.patientID,
		DoctorID:       uuid.New(), // wrong doctor
		OrganizationID: f.orgID,
		TimeSlotID:     slot.ID,
	}
	if _, err := f.svc.Book(ctx, in, Actor{}); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("wrong doctor: got %v, want ErrSlotNotFound", err)
	}

	in.DoctorID = f.doctorID
	in.OrganizationID = uuid.New() // wrong org
	if _, err := f.svc.Book(ctx, in, Actor{}); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("wrong org: got %v, want ErrSlotNotFound", err)
	}

	in.OrganizationID = f.orgID
	in.TimeSlotID = uuid.New()
	if _, err := f.svc.Book(ctx, in, Actor{}); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("unknown slot: got %v, want ErrSlotNotFound", err)
	}
}

func TestBookConcurrent(t *testing.T) {
	f := newAppointmentFixture()
	slot := f.slot(t, testNextMonday, 540)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), BookingInput{
				PatientID:      uuid.New(),
				DoctorID:       f.doctorID,
				OrganizationID: f.orgID,
				TimeSlotID:     slot.ID,
			}, Actor{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotNotAvailable):
			conflicts++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("wins=%d conflicts=%d, want exactly one winner", wins, conflicts)
	}
}

func TestCancelEarlyReleasesSlot(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	// Next Monday 09:00 is well past the 24h cutoff from Monday 08:00.
	slot := f.slot(t, testNextMonday, 540)
	appt := f.book(t, slot)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, "patient request", Actor{ID: f.patientID})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "patient request" {
		t.Fatalf("reason = %v, want recorded", cancelled.CancellationReason)
	}
	if cancelled.CancelledBy == nil || *cancelled.CancelledBy != f.patientID {
		t.Fatalf("cancelled-by = %v, want %s", cancelled.CancelledBy, f.patientID)
	}

	sl, _ := f.repo.GetSlotByID(ctx, slot.ID)
	if sl.Status != SlotAvailable {
		t.Fatalf("slot status = %s after early cancel, want available", sl.Status)
	}
}

func TestCancelLateForfeitsSlot(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	// Same day 10:00, two hours out: inside the cutoff.
	slot := f.slot(t, testMonday, 600)
	appt := f.book(t, slot)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, "overslept", Actor{ID: f.patientID})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	sl, _ := f.repo.GetSlotByID(ctx, slot.ID)
	if sl.Status != SlotBooked {
		t.Fatalf("slot status = %s after late cancel, want booked (forfeited)", sl.Status)
	}
}

func TestCancelBoundaryIsLate(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	// Exactly 24h out: not strictly after the cutoff, so the slot is kept.
	slot := f.slot(t, testMonday.AddDate(0, 0, 1), 480)
	appt := f.book(t, slot)

	if _, err := f.svc.Cancel(ctx, appt.ID, "on the line", Actor{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	sl, _ := f.repo.GetSlotByID(ctx, slot.ID)
	if sl.Status != SlotBooked {
		t.Fatalf("slot status = %s at exact cutoff, want booked", sl.Status)
	}
}

func TestCancelPastAppointment(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testMonday, 420) // 07:00, already gone at 08:00
	appt := f.book(t, slot)

	if _, err := f.svc.Cancel(ctx, appt.ID, "too late", Actor{}); !errors.Is(err, ErrAppointmentInPast) {
		t.Fatalf("past cancel: got %v, want ErrAppointmentInPast", err)
	}
}

func TestCancelTerminalAppointment(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testNextMonday, 540)
	appt := f.book(t, slot)
	if _, err := f.svc.Cancel(ctx, appt.ID, "first", Actor{}); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	_, err := f.svc.Cancel(ctx, appt.ID, "second", Actor{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel: got %v, want ErrInvalidTransition", err)
	}
}

func TestVisitLifecycle(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testMonday, 540)
	appt := f.book(t, slot)
	staff := Actor{ID: uuid.New(), Role: "staff"}

	checked, err := f.svc.CheckIn(ctx, appt.ID, staff)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checked.Status != StatusCheckedIn {
		t.Fatalf("status = %s, want checked_in", checked.Status)
	}

	started, err := f.svc.StartVisit(ctx, appt.ID, staff)
	if err != nil {
		t.Fatalf("start visit: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Fatalf("status = %s, want in_progress", started.Status)
	}
	if f.encounters.created != 1 {
		t.Fatalf("encounters created = %d, want 1", f.encounters.created)
	}
	if started.EncounterID == nil || *started.EncounterID != f.encounters.lastID {
		t.Fatalf("encounter id = %v, want %s", started.EncounterID, f.encounters.lastID)
	}

	done, err := f.svc.Complete(ctx, appt.ID, staff)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	want := []string{EventAppointmentBooked, EventAppointmentCheckedIn, EventVisitStarted, EventAppointmentCompleted}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestStartVisitEncounterFailureKeepsCheckedIn(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testMonday, 540)
	appt := f.book(t, slot)
	if _, err := f.svc.CheckIn(ctx, appt.ID, Actor{}); err != nil {
		t.Fatalf("check in: %v", err)
	}

	f.encounters.err = errors.New("ehr unreachable")
	if _, err := f.svc.StartVisit(ctx, appt.ID, Actor{}); err == nil {
		t.Fatal("start visit succeeded despite encounter failure")
	}

	cur, err := f.svc.Get(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Status != StatusCheckedIn {
		t.Fatalf("status = %s after failed start, want checked_in", cur.Status)
	}
	if cur.EncounterID != nil {
		t.Fatalf("encounter id = %v after failed start, want nil", cur.EncounterID)
	}

	// Retry once the collaborator recovers.
	f.encounters.err = nil
	if _, err := f.svc.StartVisit(ctx, appt.ID, Actor{}); err != nil {
		t.Fatalf("retry start visit: %v", err)
	}
}

func TestIllegalTransitions(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testMonday, 540)
	appt := f.book(t, slot)

	// Straight from scheduled.
	if _, err := f.svc.StartVisit(ctx, appt.ID, Actor{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("scheduled -> in_progress: got %v, want ErrInvalidTransition", err)
	}
	if _, err := f.svc.Complete(ctx, appt.ID, Actor{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("scheduled -> completed: got %v, want ErrInvalidTransition", err)
	}
	if f.encounters.created != 0 {
		t.Fatalf("encounter created on rejected transition")
	}

	// Nothing leaves completed.
	if _, err := f.svc.CheckIn(ctx, appt.ID, Actor{}); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.svc.StartVisit(ctx, appt.ID, Actor{}); err != nil {
		t.Fatalf("start visit: %v", err)
	}
	if _, err := f.svc.Complete(ctx, appt.ID, Actor{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, appt.ID, Actor{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed -> checked_in: got %v, want ErrInvalidTransition", err)
	}
	if _, err := f.svc.MarkNoShow(ctx, appt.ID, Actor{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed -> no_show: got %v, want ErrInvalidTransition", err)
	}
}

func TestMarkNoShow(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	slot := f.slot(t, testMonday, 540)
	appt := f.book(t, slot)

	marked, err := f.svc.MarkNoShow(ctx, appt.ID, Actor{ID: uuid.New(), Role: "staff"})
	if err != nil {
		t.Fatalf("mark no-show: %v", err)
	}
	if marked.Status != StatusNoShow {
		t.Fatalf("status = %s, want no_show", marked.Status)
	}

	// The slot stays consumed, same as a late cancellation.
	sl, _ := f.repo.GetSlotByID(ctx, slot.ID)
	if sl.Status != SlotBooked {
		t.Fatalf("slot status = %s after no-show, want booked", sl.Status)
	}
}

func TestListAppointments(t *testing.T) {
	f := newAppointmentFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.book(t, f.slot(t, testNextMonday, 540+i*30))
	}
	other := f.slot(t, testNextMonday, 900)
	if _, err := f.svc.Book(ctx, BookingInput{
		PatientID:      uuid.New(),
		DoctorID:       f.doctorID,
		OrganizationID: f.orgID,
		TimeSlotID:     other.ID,
		ReasonForVisit: "follow-up",
	}, Actor{}); err != nil {
		t.Fatalf("book other patient: %v", err)
	}

	mine, err := f.svc.List(ctx, AppointmentFilter{PatientID: &f.patientID})
	if err != nil {
		t.Fatalf("list by patient: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("patient listing = %d, want 3", len(mine))
	}
	for i := 1; i < len(mine); i++ {
		if mine[i].StartMinutes < mine[i-1].StartMinutes {
			t.Fatal("patient listing not ordered by start time")
		}
	}

	byDoctor, err := f.svc.List(ctx, AppointmentFilter{DoctorID: &f.doctorID, Limit: 2})
	if err != nil {
		t.Fatalf("list by doctor: %v", err)
	}
	if len(byDoctor) != 2 {
		t.Fatalf("limited listing = %d, want 2", len(byDoctor))
	}

	found, err := f.svc.List(ctx, AppointmentFilter{DoctorID: &f.doctorID, Search: "follow"})
	if err != nil {
		t.Fatalf("search listing: %v", err)
	}
	if len(found) != 1 || found[0].ReasonForVisit != "follow-up" {
		t.Fatalf("search listing = %+v, want the follow-up booking", found)
	}
}
