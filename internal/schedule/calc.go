// Package schedule computes next-fire times for the closed set of reminder
// kinds and drives them from a one-second tick loop. The calculator is pure:
// given a reminder's config and the current wall clock it returns the next
// fire time, so restarts, rollovers and clock anomalies are corrected by
// simply recomputing.
package schedule

import (
	"time"

	"github.com/deskpal/deskpal/internal/store"
)

// Tag discriminates the calculator variants.
type Tag int

const (
	// TagInterval fires every Interval, resuming from LastTriggered.
	TagInterval Tag = iota
	// TagWater spreads the remaining daily cups over the remaining work time.
	TagWater
	// TagFixed fires at fixed HH:MM times of day.
	TagFixed
	// TagCountdown fires at a stored absolute time, finitely many times.
	TagCountdown
)

// waterFloor is the minimum spacing between water reminders, keeping the
// adaptive interval from spamming when the target is nearly met late in
// the day.
const waterFloor = 15 * time.Minute

// Input is the tagged-variant calculator input. Only the fields of the
// active variant are read.
type Input struct {
	Tag     Tag
	Enabled bool

	// TagInterval
	Interval      time.Duration
	LastTriggered time.Time // zero = never triggered

	// TagWater
	WorkDay            bool
	WorkStart, WorkEnd time.Time
	TargetCups         float64
	DrunkCups          float64

	// TagFixed
	Times []string

	// TagCountdown
	NextTrigger    time.Time // zero = missing
	RemainingCount int
}

// NextFire computes the next fire time for in at wall-clock now.
// ok=false means the reminder has no next fire (disabled, exhausted, outside
// work hours, or unparseable).
func NextFire(in Input, now time.Time) (fire time.Time, ok bool) {
	if !in.Enabled {
		return time.Time{}, false
	}

	switch in.Tag {
	case TagInterval:
		return nextInterval(in, now)
	case TagWater:
		return nextWater(in, now)
	case TagFixed:
		return nextFixed(in.Times, now)
	case TagCountdown:
		return nextCountdown(in, now)
	}
	return time.Time{}, false
}

// nextInterval resumes an in-progress interval after a restart; an overdue
// or never-triggered reminder restarts the interval from now rather than
// firing immediately for occurrences missed while offline.
func nextInterval(in Input, now time.Time) (time.Time, bool) {
	if in.Interval <= 0 {
		return time.Time{}, false
	}
	if !in.LastTriggered.IsZero() {
		if next := in.LastTriggered.Add(in.Interval); next.After(now) {
			return next, true
		}
	}
	return now.Add(in.Interval), true
}

// nextWater adaptively spreads the remaining cups across the remaining work
// window: before work it waits for the work start, after work it stays
// silent, and within the window the spacing is the remaining time divided by
// the remaining cups, floored at fifteen minutes.
func nextWater(in Input, now time.Time) (time.Time, bool) {
	if !in.WorkDay {
		return time.Time{}, false
	}
	start, end := in.WorkStart, in.WorkEnd
	if start.IsZero() || end.IsZero() {
		return time.Time{}, false
	}
	// Overnight window: place the boundary on the side now falls in.
	if start.After(end) {
		if !now.Before(start) {
			end = end.Add(24 * time.Hour)
		} else if !now.After(end) {
			start = start.Add(-24 * time.Hour)
		}
	}

	if now.Before(start) {
		return start, true
	}
	if now.After(end) {
		return time.Time{}, false
	}

	remaining := in.TargetCups - in.DrunkCups
	if remaining <= 0 {
		return time.Time{}, false
	}

	interval := time.Duration(float64(end.Sub(now)) / remaining)
	if interval < waterFloor {
		interval = waterFloor
	}
	return now.Add(interval), true
}

// nextFixed picks the earliest configured time strictly after now today, or
// the earliest configured time tomorrow when today is spent. Malformed time
// strings are skipped, never fatal.
func nextFixed(times []string, now time.Time) (time.Time, bool) {
	var todayNext, tomorrowFirst time.Time
	for _, ts := range times {
		at, err := store.ClockOnDay(ts, now)
		if err != nil {
			continue
		}
		if at.After(now) && (todayNext.IsZero() || at.Before(todayNext)) {
			todayNext = at
		}
		next := at.Add(24 * time.Hour)
		if tomorrowFirst.IsZero() || next.Before(tomorrowFirst) {
			tomorrowFirst = next
		}
	}
	if !todayNext.IsZero() {
		return todayNext, true
	}
	if !tomorrowFirst.IsZero() {
		return tomorrowFirst, true
	}
	return time.Time{}, false
}

// nextCountdown returns the stored next trigger verbatim; it was advanced
// when the previous occurrence fired.
func nextCountdown(in Input, now time.Time) (time.Time, bool) {
	if in.RemainingCount <= 0 || in.NextTrigger.IsZero() {
		return time.Time{}, false
	}
	return in.NextTrigger, true
}
