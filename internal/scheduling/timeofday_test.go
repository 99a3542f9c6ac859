package scheduling

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:00", 540},
		{"09:30", 570},
		{"12:00", 720},
		{"23:59", 1439},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if err != nil {
			t.Fatalf("ParseClock(%q): unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseClockRejectsBadInput(t *testing.T) {
	bad := []string{"", "9:00", "24:00", "09:60", "0900", "09-00", "ab:cd", "09:00:00"}
	for _, in := range bad {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidClock) {
			t.Fatalf("ParseClock(%q): got %v, want ErrInvalidClock", in, err)
		}
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{0: "00:00", 540: "09:00", 570: "09:30", 1439: "23:59"}
	for minutes, want := range cases {
		if got := FormatClock(minutes); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", minutes, got, want)
		}
	}
}

func TestRangesOverlap(t *testing.T) {
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     int
		want                           bool
	}{
		{"disjoint", 540, 600, 660, 720, false},
		{"touching bounds do not overlap", 540, 600, 600, 660, false},
		{"partial overlap", 540, 630, 600, 660, true},
		{"containment", 540, 720, 570, 600, true},
		{"identical", 540, 600, 540, 600, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := rangesOverlap(c.aStart, c.aEnd, c.bStart, c.bEnd); got != c.want {
				t.Fatalf("rangesOverlap(%d,%d,%d,%d) = %v, want %v", c.aStart, c.aEnd, c.bStart, c.bEnd, got, c.want)
			}
			// Overlap is symmetric.
			if got := rangesOverlap(c.bStart, c.bEnd, c.aStart, c.aEnd); got != c.want {
				t.Fatalf("rangesOverlap is not symmetric for (%d,%d) vs (%d,%d)", c.aStart, c.aEnd, c.bStart, c.bEnd)
			}
		})
	}
}

func TestExpectedSlotCount(t *testing.T) {
	cases := []struct {
		start, end string
		duration   int
		want       int
	}{
		{"09:00", "12:00", 30, 6},
		{"09:00", "12:00", 45, 4}, // trailing partial slot dropped
		{"09:00", "09:20", 30, 0},
		{"09:00", "09:00", 30, 0},
		{"12:00", "09:00", 30, 0}, // inverted window yields nothing
	}
	for _, c := range cases {
		got, err := ExpectedSlotCount(c.start, c.end, c.duration)
		if err != nil {
			t.Fatalf("ExpectedSlotCount(%q, %q, %d): unexpected error: %v", c.start, c.end, c.duration, err)
		}
		if got != c.want {
			t.Fatalf("ExpectedSlotCount(%q, %q, %d) = %d, want %d", c.start, c.end, c.duration, got, c.want)
		}
	}

	if _, err := ExpectedSlotCount("09:00", "12:00", 0); !errors.Is(err, ErrInvalidSlotDuration) {
		t.Fatalf("zero duration: got %v, want ErrInvalidSlotDuration", err)
	}
	if _, err := ExpectedSlotCount("9am", "12:00", 30); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("bad clock: got %v, want ErrInvalidClock", err)
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2026, 3, 2, 15, 4, 5, 6, time.UTC)
	got := DateOnly(in)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateOnly(%v) = %v, want %v", in, got, want)
	}

	// Non-UTC instants resolve to the UTC civil date.
	est := time.FixedZone("EST", -5*3600)
	in = time.Date(2026, 3, 2, 22, 0, 0, 0, est) // 03:00 UTC next day
	got = DateOnly(in)
	want = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateOnly(%v) = %v, want %v", in, got, want)
	}
}
