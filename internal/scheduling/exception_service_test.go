package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newExceptionFixture() (*ExceptionService, *MemoryRepository, uuid.UUID) {
	repo := NewMemoryRepository()
	svc := NewExceptionService(repo, nil, zerolog.Nop())
	svc.now = func() time.Time { return testMonday.Add(8 * time.Hour) }
	return svc, repo, uuid.New()
}

func seedSlot(t *testing.T, repo *MemoryRepository, doctorID uuid.UUID, date time.Time, startMin int, status SlotStatus) TimeSlot {
	t.Helper()
	sl := TimeSlot{
		ID:           uuid.New(),
		ScheduleID:   uuid.New(),
		DoctorID:     doctorID,
		Date:         DateOnly(date),
		StartMinutes: startMin,
		EndMinutes:   startMin + 30,
		Status:       SlotAvailable,
	}
	if err := repo.InsertSlots(context.Background(), []TimeSlot{sl}); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	if status != SlotAvailable {
		if ok, err := repo.UpdateSlotStatus(context.Background(), sl.ID, SlotAvailable, status); err != nil || !ok {
			t.Fatalf("set slot status: ok=%v err=%v", ok, err)
		}
		sl.Status = status
	}
	return sl
}

func seedAppointment(t *testing.T, repo *MemoryRepository, doctorID uuid.UUID, date time.Time, startMin int, status AppointmentStatus) Appointment {
	t.Helper()
	a := Appointment{
		ID:           uuid.New(),
		PatientID:    uuid.New(),
		DoctorID:     doctorID,
		TimeSlotID:   uuid.New(),
		Date:         DateOnly(date),
		StartMinutes: startMin,
		EndMinutes:   startMin + 30,
		Status:       status,
	}
	if err := repo.CreateAppointment(context.Background(), &a); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return a
}

func TestExceptionCreateValidation(t *testing.T) {
	svc, _, doctorID := newExceptionFixture()
	ctx := context.Background()

	past := ExceptionInput{DoctorID: doctorID, Date: testMonday.AddDate(0, 0, -1), Reason: "too late"}
	if _, err := svc.Create(ctx, past, Actor{}); !errors.Is(err, ErrExceptionInPast) {
		t.Fatalf("past date: got %v, want ErrExceptionInPast", err)
	}

	start, end := "12:00", "10:00"
	inverted := ExceptionInput{DoctorID: doctorID, Date: testNextMonday, Start: &start, End: &end}
	if _, err := svc.Create(ctx, inverted, Actor{}); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("inverted window: got %v, want ErrInvalidTimeRange", err)
	}

	bad := "noon"
	if _, err := svc.Create(ctx, ExceptionInput{DoctorID: doctorID, Date: testNextMonday, Start: &bad}, Actor{}); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("bad clock: got %v, want ErrInvalidClock", err)
	}
}

func TestExceptionCreateOnToday(t *testing.T) {
	svc, _, doctorID := newExceptionFixture()

	// The cutoff is by civil date: same-day exceptions are allowed even
	// after midnight.
	impact, err := svc.Create(context.Background(), ExceptionInput{
		DoctorID: doctorID,
		Date:     testMonday,
		Reason:   "doctor called in sick",
	}, Actor{})
	if err != nil {
		t.Fatalf("same-day create: %v", err)
	}
	if !impact.Exception.Active {
		t.Fatal("created exception is not active")
	}
}

func TestExceptionBlocksOnlyAvailableSlots(t *testing.T) {
	svc, repo, doctorID := newExceptionFixture()
	ctx := context.Background()

	inWindow1 := seedSlot(t, repo, doctorID, testNextMonday, 540, SlotAvailable)
	inWindow2 := seedSlot(t, repo, doctorID, testNextMonday, 570, SlotAvailable)
	bookedSlot := seedSlot(t, repo, doctorID, testNextMonday, 600, SlotBooked)
	outside := seedSlot(t, repo, doctorID, testNextMonday, 840, SlotAvailable)

	start, end := "09:00", "11:00"
	impact, err := svc.Create(ctx, ExceptionInput{
		DoctorID: doctorID,
		Date:     testNextMonday,
		Start:    &start,
		End:      &end,
		Reason:   "equipment maintenance",
	}, Actor{ID: uuid.New(), Role: "admin"})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}

	if impact.BlockedSlots != 2 {
		t.Fatalf("BlockedSlots = %d, want 2", impact.BlockedSlots)
	}

	for _, id := range []uuid.UUID{inWindow1.ID, inWindow2.ID} {
		sl, err := repo.GetSlotByID(ctx, id)
		if err != nil {
			t.Fatalf("get slot: %v", err)
		}
		if sl.Status != SlotBlocked {
			t.Fatalf("in-window slot %s status = %s, want blocked", id, sl.Status)
		}
	}

	sl, _ := repo.GetSlotByID(ctx, bookedSlot.ID)
	if sl.Status != SlotBooked {
		t.Fatalf("booked slot status = %s, want booked (never auto-cancelled)", sl.Status)
	}
	sl, _ = repo.GetSlotByID(ctx, outside.ID)
	if sl.Status != SlotAvailable {
		t.Fatalf("outside slot status = %s, want available", sl.Status)
	}
}

func TestExceptionImpactReport(t *testing.T) {
	svc, repo, doctorID := newExceptionFixture()
	ctx := context.Background()

	hit := seedAppointment(t, repo, doctorID, testNextMonday, 570, StatusScheduled)
	checkedIn := seedAppointment(t, repo, doctorID, testNextMonday, 600, StatusCheckedIn)
	seedAppointment(t, repo, doctorID, testNextMonday, 840, StatusScheduled)  // outside window
	seedAppointment(t, repo, doctorID, testNextMonday, 570, StatusCancelled)  // already dead
	seedAppointment(t, repo, uuid.New(), testNextMonday, 570, StatusScheduled) // other doctor

	start, end := "09:00", "11:00"
	impact, err := svc.Create(ctx, ExceptionInput{
		DoctorID: doctorID,
		Date:     testNextMonday,
		Start:    &start,
		End:      &end,
		Reason:   "conference",
	}, Actor{})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}

	if len(impact.Affected) != 2 {
		t.Fatalf("affected = %d, want 2", len(impact.Affected))
	}
	got := map[uuid.UUID]bool{}
	for _, a := range impact.Affected {
		if !a.RequiresNotification {
			t.Fatalf("affected appointment %s not flagged for notification", a.Appointment.ID)
		}
		got[a.Appointment.ID] = true
		// The engine reports, it never cancels.
		cur, err := repo.GetAppointmentByID(ctx, a.Appointment.ID)
		if err != nil {
			t.Fatalf("get appointment: %v", err)
		}
		if cur.Status == StatusCancelled {
			t.Fatalf("appointment %s was cancelled by exception creation", cur.ID)
		}
	}
	if !got[hit.ID] || !got[checkedIn.ID] {
		t.Fatalf("affected set = %v, want {%s, %s}", got, hit.ID, checkedIn.ID)
	}
}

func TestExceptionWholeDayImpact(t *testing.T) {
	svc, repo, doctorID := newExceptionFixture()
	ctx := context.Background()

	seedAppointment(t, repo, doctorID, testNextMonday, 540, StatusScheduled)
	seedAppointment(t, repo, doctorID, testNextMonday, 1020, StatusScheduled)
	seedSlot(t, repo, doctorID, testNextMonday, 540, SlotAvailable)
	seedSlot(t, repo, doctorID, testNextMonday, 1020, SlotAvailable)

	impact, err := svc.Create(ctx, ExceptionInput{
		DoctorID: doctorID,
		Date:     testNextMonday,
		Reason:   "public holiday",
	}, Actor{})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}
	if len(impact.Affected) != 2 {
		t.Fatalf("whole-day affected = %d, want 2", len(impact.Affected))
	}
	if impact.BlockedSlots != 2 {
		t.Fatalf("whole-day blocked = %d, want 2", impact.BlockedSlots)
	}
}

func TestExceptionDelete(t *testing.T) {
	svc, repo, doctorID := newExceptionFixture()
	ctx := context.Background()

	blocked := seedSlot(t, repo, doctorID, testNextMonday, 540, SlotAvailable)
	booked := seedSlot(t, repo, doctorID, testNextMonday, 570, SlotAvailable)

	impact, err := svc.Create(ctx, ExceptionInput{
		DoctorID: doctorID,
		Date:     testNextMonday,
		Reason:   "training day",
	}, Actor{})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}
	if impact.BlockedSlots != 2 {
		t.Fatalf("blocked = %d, want 2", impact.BlockedSlots)
	}

	// A slot changed by hand while the exception was live keeps its state.
	if ok, err := repo.UpdateSlotStatus(ctx, booked.ID, SlotBlocked, SlotBooked); err != nil || !ok {
		t.Fatalf("book blocked slot: ok=%v err=%v", ok, err)
	}

	if err := svc.Delete(ctx, impact.Exception.ID, Actor{}); err != nil {
		t.Fatalf("delete exception: %v", err)
	}

	sl, _ := repo.GetSlotByID(ctx, blocked.ID)
	if sl.Status != SlotAvailable {
		t.Fatalf("released slot status = %s, want available", sl.Status)
	}
	sl, _ = repo.GetSlotByID(ctx, booked.ID)
	if sl.Status != SlotBooked {
		t.Fatalf("consumed slot status = %s, want booked", sl.Status)
	}

	if _, err := svc.Get(ctx, impact.Exception.ID); !errors.Is(err, ErrExceptionNotFound) {
		t.Fatalf("get after delete: got %v, want ErrExceptionNotFound", err)
	}
	if err := svc.Delete(ctx, impact.Exception.ID, Actor{}); !errors.Is(err, ErrExceptionNotFound) {
		t.Fatalf("double delete: got %v, want ErrExceptionNotFound", err)
	}
}
