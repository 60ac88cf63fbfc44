// Package companion runs a character session: it keeps the reminder schedule
// table in sync with the character store, drives the tick loop, and turns due
// entries into generated in-character messages.
package companion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskpal/deskpal/internal/ai"
	"github.com/deskpal/deskpal/internal/db"
	"github.com/deskpal/deskpal/internal/logging"
	"github.com/deskpal/deskpal/internal/notify"
	"github.com/deskpal/deskpal/internal/schedule"
	"github.com/deskpal/deskpal/internal/store"
)

// Event is one companion utterance (or failure) delivered to the host
// surface. Err is set when generation failed; Text still carries a short
// user-visible rendering.
type Event struct {
	Kind  string
	Label string
	Text  string
	Err   string
	At    time.Time
}

// Options configures a Session. Store and Generator are required; the rest
// default sensibly.
type Options struct {
	Store        *store.Store
	Generator    ai.Generator
	History      *db.History // optional trigger log
	Now          func() time.Time
	TickInterval time.Duration
	OSNotify     bool          // show native notifications for reminders
	WeatherFunc  func() string // optional daily-briefing extra
}

// Session owns the schedule table, the tick loop, and the generation gate
// for the active character.
type Session struct {
	store   *store.Store
	gen     ai.Generator
	history *db.History
	now     func() time.Time

	table *schedule.Table
	loop  *schedule.Loop
	gate  *ai.Gate
	cron  *cron.Cron

	osNotify    bool
	weatherFunc func() string

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopWatch func()
}

// New builds a session. Call Start to begin ticking.
func New(opts Options) *Session {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = time.Second
	}

	s := &Session{
		store:       opts.Store,
		gen:         opts.Generator,
		history:     opts.History,
		now:         nowFn,
		table:       schedule.NewTable(),
		gate:        ai.NewGate(),
		osNotify:    opts.OSNotify,
		weatherFunc: opts.WeatherFunc,
		events:      make(chan Event, 32),
		ctx:         context.Background(),
	}
	s.loop = schedule.NewLoop(interval, s.Tick)

	// The per-tick date check is the correctness guard; the midnight job just
	// makes the rollover land promptly instead of on the next due reminder.
	s.cron = cron.New()
	s.cron.AddFunc("@midnight", func() {
		if changed, err := s.store.ReconcileDaily(); err != nil {
			logging.Errorf("midnight rollover failed: %v", err)
		} else if changed {
			logging.Info("midnight rollover applied")
			s.RebuildSchedule()
		}
	})

	return s
}

// Events returns the utterance stream. The channel is buffered; events are
// dropped, not blocked on, when the host falls behind.
func (s *Session) Events() <-chan Event { return s.events }

// Store exposes the underlying character store for host surfaces.
func (s *Session) Store() *store.Store { return s.store }

// Start builds the initial schedule and starts the tick loop, the midnight
// job, and the settings-file watcher. The welcome flow runs in the
// background so startup is never blocked on generation.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.store.ReconcileDaily(); err != nil {
		return fmt.Errorf("startup rollover failed: %w", err)
	}
	s.RebuildSchedule()

	s.loop.Start(s.ctx)
	s.cron.Start()

	stop, err := s.watchSettings(s.ctx)
	if err != nil {
		logging.Warnf("settings watcher unavailable: %v", err)
	} else {
		s.stopWatch = stop
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.welcome(s.ctx)
	}()

	logging.Infof("session started with %d scheduled reminders", s.table.Len())
	return nil
}

// Stop says goodbye, records the exit time, and shuts everything down.
func (s *Session) Stop() {
	s.goodbye()

	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.cron.Stop()
	s.loop.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logging.Info("session stopped")
}

// RebuildSchedule recomputes every table entry from a fresh character
// snapshot.
func (s *Session) RebuildSchedule() {
	snap, err := s.store.CurrentSnapshot()
	if err != nil {
		logging.Errorf("schedule rebuild failed: %v", err)
		return
	}
	now := s.now()
	s.table.Rebuild(schedule.FromCharacter(snap, now), now)
	logging.Debugf("schedule rebuilt: %d entries", s.table.Len())
}

// Tick is one pass of the scheduler: roll the day over if it changed, run
// the daily briefing when it comes due, then fire everything at or past its
// fire time. Persistence happens before generation, so a crash mid-tick
// never replays a reminder.
func (s *Session) Tick(now time.Time) {
	changed, err := s.store.ReconcileDaily()
	if err != nil {
		logging.Errorf("rollover check failed: %v", err)
	} else if changed {
		s.RebuildSchedule()
	}

	s.maybeBriefing(now)

	for _, entry := range s.table.Due(now) {
		s.fire(entry, now)
	}
}

// fire persists the firing, reschedules the entry, and then (if the gate is
// free) generates the message in the background.
func (s *Session) fire(entry schedule.Entry, now time.Time) {
	kept := true
	remaining := 0
	switch entry.Kind {
	case schedule.KindWater, schedule.KindMeal, schedule.KindSitting, schedule.KindRelax:
		if err := s.store.MarkTriggered(string(entry.Kind), now); err != nil {
			logging.Errorf("failed to persist %s trigger: %v", entry.Kind, err)
		}
	case schedule.KindCustom:
		left, stillThere, err := s.store.AdvanceCountdown(entry.RefID, now)
		remaining = left
		if err != nil {
			logging.Errorf("failed to advance countdown %s: %v", entry.RefID, err)
		} else if !stillThere {
			logging.Infof("countdown reminder %q exhausted", entry.Label)
			kept = false
		} else {
			logging.Debugf("countdown reminder %q has %d firings left", entry.Label, remaining)
		}
	case schedule.KindChat, schedule.KindMedication:
		// Nothing to persist: random chat reschedules from now, medication
		// times are fixed.
	}

	if !kept {
		s.table.Remove(entry.Key)
	} else if snap, err := s.store.CurrentSnapshot(); err == nil {
		if item, ok := schedule.ItemFor(snap, entry.Key, now); ok {
			s.table.Set(item, now)
		} else {
			s.table.Remove(entry.Key)
		}
	}

	genKind, ok := generationKinds[entry.Kind]
	if !ok {
		return
	}

	// Reminders never queue behind a busy backend; the firing is already
	// persisted, only the message is skipped.
	if !s.gate.TryAcquire() {
		logging.Debugf("generation busy, skipping %s message", entry.Kind)
		s.record(string(entry.Kind), entry.Label, now, db.OutcomeSkipped, "generation busy")
		s.emit(Event{Kind: string(entry.Kind), Label: entry.Label, Text: BusyReply, At: now})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.gate.Release()

		vars := reminderVars(entry, now, remaining)
		text, err := s.gen.Generate(s.ctx, genKind, vars)
		if err != nil {
			logging.Errorf("%s message generation failed: %v", entry.Kind, err)
			s.record(string(entry.Kind), entry.Label, now, db.OutcomeFailed, err.Error())
			s.emit(Event{Kind: string(entry.Kind), Label: entry.Label, Text: "(" + ai.ShortError(err) + ")", Err: err.Error(), At: now})
			return
		}
		s.record(string(entry.Kind), entry.Label, now, db.OutcomeDelivered, "")
		s.deliver(string(entry.Kind), entry.Label, text, now)
	}()
}

var generationKinds = map[schedule.Kind]ai.Kind{
	schedule.KindWater:      ai.KindWaterReminder,
	schedule.KindMeal:       ai.KindMealReminder,
	schedule.KindSitting:    ai.KindSittingReminder,
	schedule.KindRelax:      ai.KindRelaxReminder,
	schedule.KindChat:       ai.KindRandomChat,
	schedule.KindMedication: ai.KindMedicationReminder,
	schedule.KindCustom:     ai.KindCustomReminder,
}

func reminderVars(entry schedule.Entry, now time.Time, remaining int) map[string]string {
	vars := map[string]string{}
	switch entry.Kind {
	case schedule.KindMeal:
		vars["meal_time"] = mealLabel(now)
	case schedule.KindMedication:
		vars["medication_name"] = entry.Label
	case schedule.KindCustom:
		vars["custom_message"] = entry.Label
		vars["remaining_count"] = fmt.Sprintf("%d", remaining)
	}
	return vars
}

// mealLabel names the meal a fixed-time firing is for, by hour. Times
// outside the usual windows get a neutral label.
func mealLabel(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 6 && h < 10:
		return "breakfast"
	case h >= 11 && h < 14:
		return "lunch"
	case h >= 17 && h < 20:
		return "dinner"
	default:
		return "meal time"
	}
}

// maybeBriefing runs the daily briefing once per day, at or after work start
// on workdays.
func (s *Session) maybeBriefing(now time.Time) {
	snap, err := s.store.CurrentSnapshot()
	if err != nil {
		return
	}
	today := store.DateString(now)
	if snap.LastBriefingDate == today {
		return
	}
	start, _, ok := store.TodayWork(snap, now)
	if !ok || now.Before(start) {
		return
	}
	// Busy gate: leave the date unset so the next tick retries.
	if !s.gate.TryAcquire() {
		return
	}

	// Date first: a failed generation still counts as today's attempt.
	if err := s.store.SetBriefingDate(today); err != nil {
		s.gate.Release()
		logging.Errorf("failed to record briefing date: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.gate.Release()

		vars := map[string]string{"weather": "not available"}
		if s.weatherFunc != nil {
			if w := s.weatherFunc(); w != "" {
				vars["weather"] = w
			}
		}
		text, err := s.gen.Generate(s.ctx, ai.KindDailyBriefing, vars)
		if err != nil {
			logging.Errorf("daily briefing generation failed: %v", err)
			s.record("briefing", "", now, db.OutcomeFailed, err.Error())
			return
		}
		s.record("briefing", "", now, db.OutcomeDelivered, "")
		s.deliver("briefing", "", text, now)
	}()
}

func (s *Session) deliver(kind, label, text string, at time.Time) {
	s.emit(Event{Kind: kind, Label: label, Text: text, At: at})
	if s.osNotify {
		name := ""
		if snap, err := s.store.CurrentSnapshot(); err == nil {
			name = snap.Name
		}
		notify.SendKind(kind, name, text)
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		logging.Warnf("event buffer full, dropping %s event", ev.Kind)
	}
}

func (s *Session) record(kind, label string, at time.Time, outcome, errText string) {
	if s.history == nil {
		return
	}
	rec := db.TriggerRecord{
		CharacterID: s.store.CurrentID(),
		Kind:        kind,
		Label:       label,
		FiredAt:     at,
		Outcome:     outcome,
		Error:       errText,
	}
	if err := s.history.InsertTrigger(rec); err != nil {
		logging.Warnf("failed to record trigger history: %v", err)
	}
}
