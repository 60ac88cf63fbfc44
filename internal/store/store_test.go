package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.Local)

func fixedClock() time.Time { return testNow }

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config.json"), fixedClock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenCreatesDefaultDocument(t *testing.T) {
	s := openTemp(t)

	snap, err := s.CurrentSnapshot()
	if err != nil {
		t.Fatalf("CurrentSnapshot: %v", err)
	}
	if snap.Name != "Assistant" {
		t.Errorf("name = %q, want Assistant", snap.Name)
	}
	if snap.Reminders.Water == nil || !snap.Reminders.Water.Enabled {
		t.Error("default water reminder missing or disabled")
	}
	if snap.LastResetDate != "2025-03-10" {
		t.Errorf("last_reset_date = %q", snap.LastResetDate)
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("document not written: %v", err)
	}
}

func TestUnknownKeysRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	seed := `{
        "api_base_url": "https://example.com/v1",
        "api_key": "sk-test",
        "model": "test-model",
        "pet_skin": "capsule",
        "current_character": "char_a",
        "characters": {
            "char_a": {
                "id": "char_a",
                "name": "Mia",
                "mood_engine": {"level": 3},
                "last_reset_date": "2025-03-10",
                "reminders": {
                    "sleep": {"enabled": true, "time": "23:00"},
                    "custom": []
                },
                "health": {
                    "period_tracker": {"cycle": 28},
                    "medication_reminders": []
                }
            }
        }
    }`
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, fixedClock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Touch the document so it is rewritten in full.
	if _, _, err := s.RecordDrink(); err != nil {
		t.Fatalf("RecordDrink: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["pet_skin"]) != `"capsule"` {
		t.Errorf("top-level unknown key lost: %s", raw["pet_skin"])
	}

	var chars map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw["characters"], &chars); err != nil {
		t.Fatal(err)
	}
	ch := chars["char_a"]
	if _, ok := ch["mood_engine"]; !ok {
		t.Error("character-level unknown key lost")
	}
	var rem map[string]json.RawMessage
	if err := json.Unmarshal(ch["reminders"], &rem); err != nil {
		t.Fatal(err)
	}
	if _, ok := rem["sleep"]; !ok {
		t.Error("reminders-level unknown key lost")
	}
	var health map[string]json.RawMessage
	if err := json.Unmarshal(ch["health"], &health); err != nil {
		t.Fatal(err)
	}
	if _, ok := health["period_tracker"]; !ok {
		t.Error("health-level unknown key lost")
	}
}

func TestLegacyMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	seed := `{
        "api_base_url": "https://example.com/v1",
        "api_key": "sk-legacy",
        "model": "legacy-model",
        "name": "Kuro",
        "persona": "grumpy cat",
        "daily_target_cups": 6,
        "cups_drunk_today": 2,
        "last_reset_date": "2025-03-10",
        "theme": "dark"
    }`
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, fixedClock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap, err := s.CurrentSnapshot()
	if err != nil {
		t.Fatalf("CurrentSnapshot: %v", err)
	}
	if snap.ID != "char_default" {
		t.Errorf("migrated id = %q, want char_default", snap.ID)
	}
	if snap.Name != "Kuro" || snap.Persona != "grumpy cat" {
		t.Errorf("migrated character = %q/%q", snap.Name, snap.Persona)
	}
	if snap.CupsDrunkToday != 2 {
		t.Errorf("cups = %v, want 2", snap.CupsDrunkToday)
	}
	if snap.Reminders.Water == nil {
		t.Error("migrated character missing default water reminder")
	}

	baseURL, apiKey, model, _ := s.Settings()
	if baseURL != "https://example.com/v1" || apiKey != "sk-legacy" || model != "legacy-model" {
		t.Errorf("settings = %q/%q/%q", baseURL, apiKey, model)
	}

	// Unrecognized legacy top-level keys stay at the document level.
	s.View(func(doc *Document) {
		if _, ok := doc.Extra["theme"]; !ok {
			t.Error("unknown legacy key lost from document")
		}
	})
	if _, ok := snap.Extra["theme"]; ok {
		t.Error("unknown legacy key leaked into the migrated character")
	}
}

func TestOpenReconcilesStaleDay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	seed := `{
        "current_character": "char_a",
        "characters": {
            "char_a": {
                "id": "char_a",
                "name": "Mia",
                "cups_drunk_today": 5,
                "last_reset_date": "2025-03-09",
                "reminders": {
                    "water": {"enabled": true, "type": "interval", "interval": 60,
                              "last_triggered": "2025-03-09T17:00:00+08:00"},
                    "custom": []
                }
            }
        }
    }`
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, fixedClock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, _ := s.CurrentSnapshot()
	if snap.CupsDrunkToday != 0 {
		t.Errorf("cups = %v, want 0 after rollover", snap.CupsDrunkToday)
	}
	if snap.LastResetDate != "2025-03-10" {
		t.Errorf("last_reset_date = %q", snap.LastResetDate)
	}
	if snap.Reminders.Water.LastTriggered != nil {
		t.Error("water last_triggered should be cleared by rollover")
	}
}

func TestCharacterGuards(t *testing.T) {
	s := openTemp(t)
	onlyID := s.CurrentID()

	if err := s.DeleteCharacter(onlyID); !errors.Is(err, ErrLastCharacter) {
		t.Errorf("deleting the only character: err = %v", err)
	}

	otherID, err := s.CreateCharacter("Kuro", "grumpy cat", "")
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	if err := s.DeleteCharacter(onlyID); !errors.Is(err, ErrActiveCharacter) {
		t.Errorf("deleting the active character: err = %v", err)
	}
	if err := s.SwitchCharacter("char_nope"); !errors.Is(err, ErrNoSuchCharacter) {
		t.Errorf("switching to unknown character: err = %v", err)
	}

	if err := s.SwitchCharacter(otherID); err != nil {
		t.Fatalf("SwitchCharacter: %v", err)
	}
	if s.CurrentID() != otherID {
		t.Error("switch did not take effect")
	}
	if err := s.DeleteCharacter(onlyID); err != nil {
		t.Errorf("deleting inactive character: %v", err)
	}
}

func TestMarkTriggeredPersists(t *testing.T) {
	s := openTemp(t)
	if err := s.MarkTriggered("water", testNow); err != nil {
		t.Fatalf("MarkTriggered: %v", err)
	}

	// Reopen from disk to prove persistence.
	s2, err := Open(s.Path(), fixedClock)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, _ := s2.CurrentSnapshot()
	last, ok := snap.Reminders.Water.LastTriggeredTime()
	if !ok {
		t.Fatal("last_triggered not persisted")
	}
	if !last.Equal(testNow) {
		t.Errorf("last = %v, want %v", last, testNow)
	}

	if err := s.MarkTriggered("bogus", testNow); err == nil {
		t.Error("unknown kind should error")
	}
}

func TestCountdownLifecycle(t *testing.T) {
	s := openTemp(t)
	r, err := s.AddCountdown("take the cake out", 30, 2)
	if err != nil {
		t.Fatalf("AddCountdown: %v", err)
	}
	next, ok := r.NextTrigger()
	if !ok || !next.Equal(testNow.Add(30*time.Minute)) {
		t.Errorf("first trigger = %v, %v", next, ok)
	}

	remaining, kept, err := s.AdvanceCountdown(r.ID, next)
	if err != nil || !kept || remaining != 1 {
		t.Fatalf("first advance: remaining=%d kept=%v err=%v", remaining, kept, err)
	}
	snap, _ := s.CurrentSnapshot()
	nt, _ := snap.Reminders.Custom[0].NextTrigger()
	if !nt.Equal(next.Add(30 * time.Minute)) {
		t.Errorf("advanced trigger = %v", nt)
	}

	_, kept, err = s.AdvanceCountdown(r.ID, nt)
	if err != nil || kept {
		t.Fatalf("final advance: kept=%v err=%v", kept, err)
	}
	snap, _ = s.CurrentSnapshot()
	if len(snap.Reminders.Custom) != 0 {
		t.Error("exhausted countdown should self-delete")
	}

	if _, _, err := s.AdvanceCountdown(r.ID, nt); err == nil {
		t.Error("advancing a deleted countdown should error")
	}
}

func TestAddCountdownValidation(t *testing.T) {
	s := openTemp(t)
	if _, err := s.AddCountdown("x", 0, 3); err == nil {
		t.Error("zero interval accepted")
	}
	if _, err := s.AddCountdown("x", 10, 0); err == nil {
		t.Error("zero count accepted")
	}
}

func TestAppendChatCaps(t *testing.T) {
	s := openTemp(t)
	for i := 0; i < 25; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := s.AppendChat(role, "msg"); err != nil {
			t.Fatalf("AppendChat: %v", err)
		}
	}
	snap, _ := s.CurrentSnapshot()
	if len(snap.ChatHistory) != 20 {
		t.Errorf("history length = %d, want 20", len(snap.ChatHistory))
	}
}

func TestRecordDrink(t *testing.T) {
	s := openTemp(t)
	cups, target, err := s.RecordDrink()
	if err != nil {
		t.Fatalf("RecordDrink: %v", err)
	}
	if cups != 1 || target != 7.5 {
		t.Errorf("cups=%v target=%v", cups, target)
	}
}

func TestReconcileNoopSameDay(t *testing.T) {
	ch := defaultCharacter("char_x", "X", testNow)
	ch.CupsDrunkToday = 3
	if Reconcile(ch, DateString(testNow)) {
		t.Error("same-day reconcile should report no change")
	}
	if ch.CupsDrunkToday != 3 {
		t.Error("same-day reconcile must not reset counters")
	}
}

func TestReconcileNewDay(t *testing.T) {
	ch := defaultCharacter("char_x", "X", testNow)
	ch.CupsDrunkToday = 3
	ch.LastResetDate = "2025-03-09"
	ch.Reminders.Sitting.SetLastTriggered(testNow.Add(-16 * time.Hour))
	ch.Reminders.Meal.SetLastTriggered(testNow.Add(-16 * time.Hour))

	if !Reconcile(ch, "2025-03-10") {
		t.Fatal("expected reconcile to report a change")
	}
	if ch.CupsDrunkToday != 0 || ch.LastResetDate != "2025-03-10" {
		t.Errorf("counters = %v / %q", ch.CupsDrunkToday, ch.LastResetDate)
	}
	if ch.Reminders.Sitting.LastTriggered != nil || ch.Reminders.Meal.LastTriggered != nil {
		t.Error("trigger timestamps should be cleared")
	}
}

func TestTimestampParsingVariants(t *testing.T) {
	for _, raw := range []string{
		"2025-03-10T09:30:00+08:00",
		"2025-03-10T09:30:00.123456+08:00",
		"2025-03-10T09:30:00",
		"2025-03-10T09:30:00.123456",
	} {
		if _, ok := ParseTimestamp(raw); !ok {
			t.Errorf("ParseTimestamp(%q) failed", raw)
		}
	}
	if _, ok := ParseTimestamp("not a time"); ok {
		t.Error("garbage timestamp accepted")
	}
}
