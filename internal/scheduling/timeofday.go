package scheduling

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// ParseClock converts an "HH:mm" string to minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil || len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: bad clock value %q", ErrInvalidClock, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: bad clock value %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:mm".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// rangesOverlap reports whether two half-open minute intervals [aStart, aEnd)
// and [bStart, bEnd) intersect. Touching bounds do not count.
func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// ExpectedSlotCount returns how many whole slots of the given duration fit in
// [start, end), ignoring exceptions. A trailing partial slot is not counted.
func ExpectedSlotCount(start, end string, durationMinutes int) (int, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	if durationMinutes <= 0 {
		return 0, fmt.Errorf("%w: slot duration must be positive", ErrInvalidSlotDuration)
	}
	if endMin <= startMin {
		return 0, nil
	}
	return (endMin - startMin) / durationMinutes, nil
}

// DateOnly truncates an instant to its civil date at UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
