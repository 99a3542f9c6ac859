package scheduling

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to AppointmentStatus }{
		{StatusScheduled, StatusCheckedIn},
		{StatusScheduled, StatusCancelled},
		{StatusScheduled, StatusNoShow},
		{StatusCheckedIn, StatusInProgress},
		{StatusCheckedIn, StatusCancelled},
		{StatusCheckedIn, StatusNoShow},
		{StatusInProgress, StatusCompleted},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Fatalf("CanTransition(%s, %s) = false, want true", c.from, c.to)
		}
	}

	denied := []struct{ from, to AppointmentStatus }{
		{StatusScheduled, StatusInProgress}, // must check in first
		{StatusScheduled, StatusCompleted},
		{StatusCheckedIn, StatusCompleted},
		{StatusInProgress, StatusCancelled}, // a started visit cannot be cancelled
		{StatusInProgress, StatusNoShow},
		{StatusScheduled, StatusScheduled},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Fatalf("CanTransition(%s, %s) = true, want false", c.from, c.to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	terminals := []AppointmentStatus{StatusCompleted, StatusCancelled, StatusNoShow}
	all := []AppointmentStatus{
		StatusScheduled, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow,
	}
	for _, from := range terminals {
		if got := AllowedTransitions(from); len(got) != 0 {
			t.Fatalf("AllowedTransitions(%s) = %v, want empty", from, got)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal status %s allows transition to %s", from, to)
			}
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	got := AllowedTransitions(StatusScheduled)
	want := map[AppointmentStatus]bool{StatusCheckedIn: true, StatusCancelled: true, StatusNoShow: true}
	if len(got) != len(want) {
		t.Fatalf("AllowedTransitions(scheduled) = %v, want %d entries", got, len(want))
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("AllowedTransitions(scheduled) contains unexpected %s", s)
		}
	}
}

func TestCheckTransitionError(t *testing.T) {
	err := checkTransition(StatusCompleted, StatusCheckedIn)
	if err == nil {
		t.Fatal("expected error for completed -> checked_in")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error %v does not match ErrInvalidTransition", err)
	}

	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("error %T is not *InvalidTransitionError", err)
	}
	if ite.From != StatusCompleted || ite.To != StatusCheckedIn {
		t.Fatalf("InvalidTransitionError carries %s -> %s, want completed -> checked_in", ite.From, ite.To)
	}

	if err := checkTransition(StatusScheduled, StatusCheckedIn); err != nil {
		t.Fatalf("legal transition returned error: %v", err)
	}
}
