package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts covers what this build writes (RFC3339) and what older
// builds left behind (ISO timestamps without zone, with or without fraction).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a persisted timestamp in any accepted layout.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a timestamp the way this build persists it.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// DateString renders a calendar date the way the document stores it.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseClock parses an "HH:MM" time-of-day string.
func ParseClock(s string) (hour, min int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed time %q", s)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed time %q", s)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, min, nil
}

// ClockOnDay places an "HH:MM" string on the calendar day of ref.
func ClockOnDay(s string, ref time.Time) (time.Time, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), h, m, 0, 0, ref.Location()), nil
}

// Weekday returns the document's weekday key ("Monday".."Sunday") for t.
func Weekday(t time.Time) string {
	return t.Weekday().String()
}
