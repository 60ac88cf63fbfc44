package companion

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deskpal/deskpal/internal/ai"
	"github.com/deskpal/deskpal/internal/store"
)

// Monday, mid-morning.
var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.Local)

type fakeGen struct {
	mu    sync.Mutex
	calls []ai.Kind
	reply string
	err   error
}

func (g *fakeGen) Generate(ctx context.Context, kind ai.Kind, vars map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, kind)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "generated " + string(kind), nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestSession(t *testing.T, gen *fakeGen) (*Session, *store.Store, *testClock) {
	t.Helper()
	clock := &testClock{now: base}
	st, err := store.Open(filepath.Join(t.TempDir(), "config.json"), clock.Now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Mark the briefing as already sent so reminder tests hold the gate
	// deterministically.
	if err := st.SetBriefingDate(store.DateString(base)); err != nil {
		t.Fatalf("SetBriefingDate: %v", err)
	}
	s := New(Options{Store: st, Generator: gen, Now: clock.Now})
	return s, st, clock
}

func drainEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestTickFiresAndReschedules(t *testing.T) {
	gen := &fakeGen{}
	s, st, clock := newTestSession(t, gen)
	s.RebuildSchedule()

	// Default sitting interval is 45 minutes, never triggered.
	fireTime := base.Add(45 * time.Minute)
	clock.Set(fireTime)
	s.Tick(fireTime)
	s.wg.Wait()

	snap, _ := st.CurrentSnapshot()
	last, ok := snap.Reminders.Sitting.LastTriggeredTime()
	if !ok || !last.Equal(fireTime) {
		t.Errorf("last_triggered = %v/%v, want %v", last, ok, fireTime)
	}

	next, ok := s.table.FireAt("sitting")
	if !ok {
		t.Fatal("sitting entry missing after fire")
	}
	if want := fireTime.Add(45 * time.Minute); !next.Equal(want) {
		t.Errorf("rescheduled at %v, want %v", next, want)
	}

	ev := drainEvent(t, s)
	if ev.Kind != "sitting" || ev.Err != "" {
		t.Errorf("event = %+v", ev)
	}

	// A second tick at the same instant must not fire again.
	before := gen.callCount()
	s.Tick(fireTime)
	s.wg.Wait()
	if gen.callCount() != before {
		t.Error("same-instant tick double-fired")
	}
}

func TestFiringPersistsDespiteGenerationFailure(t *testing.T) {
	gen := &fakeGen{err: errors.New("backend down")}
	s, st, clock := newTestSession(t, gen)
	s.RebuildSchedule()

	fireTime := base.Add(45 * time.Minute)
	clock.Set(fireTime)
	s.Tick(fireTime)
	s.wg.Wait()

	snap, _ := st.CurrentSnapshot()
	if _, ok := snap.Reminders.Sitting.LastTriggeredTime(); !ok {
		t.Error("failed generation must not undo the persisted trigger")
	}
	ev := drainEvent(t, s)
	if ev.Err == "" {
		t.Error("event should carry the failure")
	}
}

func TestBusyGateSkipsMessageButPersists(t *testing.T) {
	gen := &fakeGen{}
	s, st, clock := newTestSession(t, gen)
	s.RebuildSchedule()

	if !s.gate.TryAcquire() {
		t.Fatal("could not hold the gate")
	}
	defer s.gate.Release()

	fireTime := base.Add(45 * time.Minute)
	clock.Set(fireTime)
	s.Tick(fireTime)
	s.wg.Wait()

	if gen.callCount() != 0 {
		t.Error("busy gate should skip generation")
	}
	snap, _ := st.CurrentSnapshot()
	if _, ok := snap.Reminders.Sitting.LastTriggeredTime(); !ok {
		t.Error("skipped message must still persist the trigger")
	}

	ev := drainEvent(t, s)
	if ev.Kind != "sitting" || ev.Text != BusyReply {
		t.Errorf("busy notice = %+v, want sitting event with %q", ev, BusyReply)
	}
}

func TestCountdownSelfDeletes(t *testing.T) {
	gen := &fakeGen{}
	s, st, clock := newTestSession(t, gen)

	r, err := st.AddCountdown("take the cake out", 30, 1)
	if err != nil {
		t.Fatalf("AddCountdown: %v", err)
	}
	s.RebuildSchedule()

	key := "custom:" + r.ID
	if _, ok := s.table.FireAt(key); !ok {
		t.Fatal("countdown not scheduled")
	}

	fireTime := base.Add(30 * time.Minute)
	clock.Set(fireTime)
	s.Tick(fireTime)
	s.wg.Wait()

	if _, ok := s.table.FireAt(key); ok {
		t.Error("exhausted countdown still scheduled")
	}
	snap, _ := st.CurrentSnapshot()
	if len(snap.Reminders.Custom) != 0 {
		t.Error("exhausted countdown still in the document")
	}
}

func TestTickRollsOverOnDateChange(t *testing.T) {
	gen := &fakeGen{}
	s, st, clock := newTestSession(t, gen)
	s.RebuildSchedule()

	if _, _, err := st.RecordDrink(); err != nil {
		t.Fatal(err)
	}

	nextDay := base.Add(24 * time.Hour)
	clock.Set(nextDay)
	s.Tick(nextDay)
	s.wg.Wait()

	snap, _ := st.CurrentSnapshot()
	if snap.CupsDrunkToday != 0 {
		t.Errorf("cups = %v, want 0 after rollover", snap.CupsDrunkToday)
	}
	if snap.LastResetDate != store.DateString(nextDay) {
		t.Errorf("last_reset_date = %q", snap.LastResetDate)
	}
}

func TestDailyBriefingOncePerDay(t *testing.T) {
	gen := &fakeGen{}
	s, st, _ := newTestSession(t, gen)

	// Make the briefing pending again.
	if err := st.SetBriefingDate("2025-03-09"); err != nil {
		t.Fatal(err)
	}

	s.Tick(base)
	s.wg.Wait()
	if gen.callCount() != 1 {
		t.Fatalf("generation calls = %d, want 1", gen.callCount())
	}
	if gen.calls[0] != ai.KindDailyBriefing {
		t.Errorf("kind = %s", gen.calls[0])
	}

	s.Tick(base.Add(time.Second))
	s.wg.Wait()
	if gen.callCount() != 1 {
		t.Error("briefing fired twice in one day")
	}
	snap, _ := st.CurrentSnapshot()
	if snap.LastBriefingDate != store.DateString(base) {
		t.Errorf("last_daily_briefing_date = %q", snap.LastBriefingDate)
	}
}

func TestChatBusyReturnsNotice(t *testing.T) {
	gen := &fakeGen{}
	s, st, _ := newTestSession(t, gen)

	s.gate.TryAcquire()
	defer s.gate.Release()

	reply, err := s.Chat(context.Background(), "hello?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != BusyReply {
		t.Errorf("reply = %q, want busy notice", reply)
	}
	// The user turn is still recorded.
	snap, _ := st.CurrentSnapshot()
	if len(snap.ChatHistory) != 1 || snap.ChatHistory[0].Role != "user" {
		t.Errorf("history = %+v", snap.ChatHistory)
	}
}

func TestChatRecordsBothTurns(t *testing.T) {
	gen := &fakeGen{reply: "hi there"}
	s, st, _ := newTestSession(t, gen)

	reply, err := s.Chat(context.Background(), "hello?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q", reply)
	}
	snap, _ := st.CurrentSnapshot()
	if len(snap.ChatHistory) != 2 || snap.ChatHistory[1].Role != "assistant" {
		t.Errorf("history = %+v", snap.ChatHistory)
	}
}

func TestDrinkFeedbackDroppedWhenBusy(t *testing.T) {
	gen := &fakeGen{}
	s, st, _ := newTestSession(t, gen)

	s.gate.TryAcquire()
	defer s.gate.Release()

	cups, _, err := s.Drink(context.Background())
	if err != nil {
		t.Fatalf("Drink: %v", err)
	}
	s.wg.Wait()
	if cups != 1 {
		t.Errorf("cups = %v, want 1", cups)
	}
	if gen.callCount() != 0 {
		t.Error("busy gate should drop drink feedback silently")
	}
	snap, _ := st.CurrentSnapshot()
	if snap.CupsDrunkToday != 1 {
		t.Error("cup not recorded")
	}
}

func TestSwitchCharacterRebuildsSchedule(t *testing.T) {
	gen := &fakeGen{}
	s, st, _ := newTestSession(t, gen)
	s.RebuildSchedule()

	id, err := st.CreateCharacter("Kuro", "grumpy cat", "")
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	if err := s.SwitchCharacter(context.Background(), id); err != nil {
		t.Fatalf("SwitchCharacter: %v", err)
	}

	if st.CurrentID() != id {
		t.Error("switch did not land")
	}
	if s.table.Len() == 0 {
		t.Error("schedule empty after switch")
	}
	// Goodbye from the old character, hello from the new one.
	if gen.callCount() != 2 {
		t.Errorf("generation calls = %d, want 2", gen.callCount())
	}
}

func TestMealLabelByHour(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{7, "breakfast"},
		{9, "breakfast"},
		{10, "meal time"},
		{12, "lunch"},
		{13, "lunch"},
		{15, "meal time"},
		{18, "dinner"},
		{19, "dinner"},
		{21, "meal time"},
		{5, "meal time"},
	}
	for _, c := range cases {
		at := time.Date(2025, 3, 10, c.hour, 30, 0, 0, time.Local)
		if got := mealLabel(at); got != c.want {
			t.Errorf("mealLabel(%02d:30) = %q, want %q", c.hour, got, c.want)
		}
	}
}

func TestMedicationsScheduleIndependently(t *testing.T) {
	gen := &fakeGen{}
	s, st, clock := newTestSession(t, gen)

	morning, err := st.AddMedication("ibuprofen", []string{"11:00"}, "")
	if err != nil {
		t.Fatalf("AddMedication: %v", err)
	}
	evening, err := st.AddMedication("vitamin d", []string{"14:00"}, "")
	if err != nil {
		t.Fatalf("AddMedication: %v", err)
	}
	// Quiet the built-in reminders so only the medications fire.
	err = st.Mutate(func(doc *store.Document) error {
		ch := doc.Characters[doc.CurrentCharacter]
		ch.Reminders.Water.Enabled = false
		ch.Reminders.Meal.Enabled = false
		ch.Reminders.Sitting.Enabled = false
		ch.Reminders.Relax.Enabled = false
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	s.RebuildSchedule()

	wantMorning := time.Date(2025, 3, 10, 11, 0, 0, 0, time.Local)
	wantEvening := time.Date(2025, 3, 10, 14, 0, 0, 0, time.Local)
	if at, ok := s.table.FireAt("med:" + morning); !ok || !at.Equal(wantMorning) {
		t.Fatalf("morning med at %v/%v, want %v", at, ok, wantMorning)
	}
	if at, ok := s.table.FireAt("med:" + evening); !ok || !at.Equal(wantEvening) {
		t.Fatalf("evening med at %v/%v, want %v", at, ok, wantEvening)
	}

	clock.Set(wantMorning)
	s.Tick(wantMorning)
	s.wg.Wait()

	if gen.callCount() != 1 {
		t.Errorf("generation calls = %d, want 1", gen.callCount())
	}
	ev := drainEvent(t, s)
	if ev.Kind != "medication" || ev.Label != "ibuprofen" {
		t.Errorf("event = %+v, want medication/ibuprofen", ev)
	}

	// The fired medication rolls to tomorrow; the other entry is untouched.
	if at, ok := s.table.FireAt("med:" + morning); !ok || !at.Equal(time.Date(2025, 3, 11, 11, 0, 0, 0, time.Local)) {
		t.Errorf("morning med recomputed to %v/%v, want tomorrow 11:00", at, ok)
	}
	if at, ok := s.table.FireAt("med:" + evening); !ok || !at.Equal(wantEvening) {
		t.Errorf("evening med moved to %v/%v, want %v", at, ok, wantEvening)
	}
}
