package store

// Reconcile runs the daily rollover on a character: when last_reset_date is
// not today (or missing/malformed), today's cup counter restarts at zero and
// every interval reminder's cooldown is cleared so today's cadence starts
// fresh instead of inheriting yesterday's. Reports whether anything changed.
//
// Callers must run this before reading daily counters and before (re)building
// the schedule for the day; it also runs on character switch since the newly
// activated character may not have been reconciled while inactive.
func Reconcile(ch *Character, today string) bool {
	if ch == nil || ch.LastResetDate == today {
		return false
	}

	ch.CupsDrunkToday = 0
	ch.LastResetDate = today

	for _, r := range []*IntervalReminder{ch.Reminders.Water, ch.Reminders.Sitting, ch.Reminders.Relax} {
		if r != nil {
			r.ClearLastTriggered()
		}
	}
	if ch.Reminders.Meal != nil {
		ch.Reminders.Meal.LastTriggered = nil
	}
	return true
}
