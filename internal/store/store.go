package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskpal/deskpal/internal/logging"
)

// Store is the durable character store. Every mutation goes through
// Mutate, which rewrites the whole document; partial writes are never
// observable on disk.
type Store struct {
	path string
	now  func() time.Time

	mu        sync.Mutex
	doc       *Document
	lastWrite time.Time
}

// CharacterInfo is the lightweight listing view of a character.
type CharacterInfo struct {
	ID      string
	Name    string
	Current bool
}

var (
	// ErrLastCharacter is returned when deleting the only remaining character.
	ErrLastCharacter = errors.New("at least one character must remain")
	// ErrActiveCharacter is returned when deleting the active character.
	ErrActiveCharacter = errors.New("cannot delete the active character, switch first")
	// ErrNoSuchCharacter is returned for unknown character ids.
	ErrNoSuchCharacter = errors.New("character not found")
)

// Open loads the document at path, creating a default one on first run and
// migrating the legacy single-character layout when found. The active
// character is daily-reconciled before Open returns.
func Open(path string, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	s := &Store{path: path, now: now}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		doc, derr := decodeDocument(data, now)
		if derr != nil {
			return nil, fmt.Errorf("failed to load character store: %w", derr)
		}
		s.doc = doc
	case os.IsNotExist(err):
		s.doc = defaultDocument(now())
		logging.Infof("character store not found, creating %s", path)
	default:
		return nil, fmt.Errorf("failed to read character store: %w", err)
	}

	if ch := s.doc.current(); ch != nil {
		Reconcile(ch, DateString(now()))
	}
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeDocument parses the document, migrating the legacy layout where the
// character fields lived at the top level next to the API settings.
func decodeDocument(data []byte, now func() time.Time) (*Document, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	if _, ok := probe["characters"]; ok {
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc.Characters == nil {
			doc.Characters = map[string]*Character{}
		}
		if len(doc.Characters) == 0 {
			ch := defaultCharacter("char_"+uuid.NewString()[:8], "Assistant", now())
			doc.Characters[ch.ID] = ch
			doc.CurrentCharacter = ch.ID
		}
		return &doc, nil
	}

	logging.Info("legacy single-character document detected, migrating")
	return migrateLegacy(data, now())
}

func migrateLegacy(data []byte, now time.Time) (*Document, error) {
	// The legacy layout is a character document with the global API settings
	// mixed in at the top level.
	var ch Character
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	// The flat legacy top level is the document: recognized character fields
	// move into the character, anything unrecognized stays on the document.
	for _, k := range characterKeys {
		delete(doc.Extra, k)
	}
	if len(doc.Extra) == 0 {
		doc.Extra = nil
	}
	ch.Extra = nil
	ch.ID = "char_default"
	if ch.Name == "" {
		ch.Name = "Assistant"
	}
	fillCharacterDefaults(&ch, now)

	doc.Characters = map[string]*Character{ch.ID: &ch}
	doc.CurrentCharacter = ch.ID
	if doc.APIBaseURL == "" {
		doc.APIBaseURL = defaultAPIBaseURL
	}
	return &doc, nil
}

// View runs fn with the document under lock, for read-only access.
func (s *Store) View(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Mutate runs fn with the document under lock and persists the whole
// document afterwards. A failed save leaves the in-memory mutation in place
// so the scheduler keeps operating; the error surfaces to the caller.
func (s *Store) Mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.doc); err != nil {
		return err
	}
	return s.saveLocked()
}

// Reload replaces the in-memory document with the on-disk one. Used when the
// file was edited externally.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to reload character store: %w", err)
	}
	doc, err := decodeDocument(data, s.now)
	if err != nil {
		return fmt.Errorf("failed to reload character store: %w", err)
	}
	s.doc = doc
	return nil
}

// Path returns the document path.
func (s *Store) Path() string { return s.path }

// LastWrite reports when the store last wrote the file itself, letting file
// watchers tell self-writes apart from external edits.
func (s *Store) LastWrite() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode character store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to save character store: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to save character store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to save character store: %w", err)
	}
	s.lastWrite = s.now()
	return nil
}

// --- character access ---

func (d *Document) current() *Character {
	if ch, ok := d.Characters[d.CurrentCharacter]; ok {
		return ch
	}
	// Fall back to any character so a damaged current_character never
	// strands the session.
	for id, ch := range d.Characters {
		d.CurrentCharacter = id
		return ch
	}
	return nil
}

// CurrentID returns the active character's id.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch := s.doc.current(); ch != nil {
		return ch.ID
	}
	return ""
}

// CurrentSnapshot returns a deep copy of the active character, safe to read
// outside the store lock. Schedule rebuilds work from snapshots.
func (s *Store) CurrentSnapshot() (*Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.doc.current()
	if ch == nil {
		return nil, ErrNoSuchCharacter
	}
	return copyCharacter(ch)
}

// Settings returns the global generation settings.
func (s *Store) Settings() (baseURL, apiKey, model string, maxHistory int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.APIBaseURL, s.doc.APIKey, s.doc.Model, s.doc.MaxHistoryMessages
}

func copyCharacter(ch *Character) (*Character, error) {
	data, err := json.Marshal(ch)
	if err != nil {
		return nil, err
	}
	var out Character
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Characters lists all characters.
func (s *Store) Characters() []CharacterInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]CharacterInfo, 0, len(s.doc.Characters))
	for id, ch := range s.doc.Characters {
		infos = append(infos, CharacterInfo{
			ID:      id,
			Name:    ch.Name,
			Current: id == s.doc.CurrentCharacter,
		})
	}
	return infos
}

// CreateCharacter adds a new character with default reminder configs.
func (s *Store) CreateCharacter(name, persona, userIdentity string) (string, error) {
	id := "char_" + uuid.NewString()[:8]
	err := s.Mutate(func(doc *Document) error {
		ch := defaultCharacter(id, name, s.now())
		if persona != "" {
			ch.Persona = persona
		}
		if userIdentity != "" {
			ch.UserIdentity = userIdentity
		}
		doc.Characters[id] = ch
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteCharacter removes a character. The only remaining character and the
// active one are protected.
func (s *Store) DeleteCharacter(id string) error {
	return s.Mutate(func(doc *Document) error {
		if _, ok := doc.Characters[id]; !ok {
			return ErrNoSuchCharacter
		}
		if len(doc.Characters) <= 1 {
			return ErrLastCharacter
		}
		if id == doc.CurrentCharacter {
			return ErrActiveCharacter
		}
		delete(doc.Characters, id)
		return nil
	})
}

// SwitchCharacter atomically makes id the active character and reconciles it,
// since it may not have been reconciled while inactive.
func (s *Store) SwitchCharacter(id string) error {
	return s.Mutate(func(doc *Document) error {
		ch, ok := doc.Characters[id]
		if !ok {
			return ErrNoSuchCharacter
		}
		doc.CurrentCharacter = id
		Reconcile(ch, DateString(s.now()))
		return nil
	})
}

// --- mutations used by the scheduler and the CLI ---

// mutateCurrent applies fn to the active character and saves.
func (s *Store) mutateCurrent(fn func(ch *Character) error) error {
	return s.Mutate(func(doc *Document) error {
		ch := doc.current()
		if ch == nil {
			return ErrNoSuchCharacter
		}
		return fn(ch)
	})
}

// RecordDrink increments today's cup counter and returns the new progress.
func (s *Store) RecordDrink() (cups, target float64, err error) {
	err = s.mutateCurrent(func(ch *Character) error {
		Reconcile(ch, DateString(s.now()))
		ch.CupsDrunkToday++
		cups, target = ch.CupsDrunkToday, ch.DailyTargetCups
		return nil
	})
	return cups, target, err
}

// MarkTriggered persists last_triggered for a built-in reminder kind.
func (s *Store) MarkTriggered(kind string, at time.Time) error {
	return s.mutateCurrent(func(ch *Character) error {
		switch kind {
		case "water":
			if ch.Reminders.Water != nil {
				ch.Reminders.Water.SetLastTriggered(at)
			}
		case "meal":
			if ch.Reminders.Meal != nil {
				ch.Reminders.Meal.SetLastTriggered(at)
			}
		case "sitting":
			if ch.Reminders.Sitting != nil {
				ch.Reminders.Sitting.SetLastTriggered(at)
			}
		case "relax":
			if ch.Reminders.Relax != nil {
				ch.Reminders.Relax.SetLastTriggered(at)
			}
		default:
			return fmt.Errorf("unknown reminder kind %q", kind)
		}
		return nil
	})
}

// AdvanceCountdown decrements a countdown reminder after a fire, advancing
// its next trigger time or deleting it when exhausted. Reports whether the
// reminder survives.
func (s *Store) AdvanceCountdown(id string, at time.Time) (remaining int, kept bool, err error) {
	err = s.mutateCurrent(func(ch *Character) error {
		list := ch.Reminders.Custom
		for i, r := range list {
			if r.ID != id {
				continue
			}
			r.RemainingCount--
			remaining = r.RemainingCount
			if r.RemainingCount > 0 {
				r.SetNextTrigger(at.Add(time.Duration(r.IntervalMinutes * float64(time.Minute))))
				kept = true
			} else {
				ch.Reminders.Custom = append(list[:i], list[i+1:]...)
			}
			return nil
		}
		return fmt.Errorf("countdown reminder %s not found", id)
	})
	return remaining, kept, err
}

// AddCountdown creates a countdown reminder firing first at now+interval.
func (s *Store) AddCountdown(content string, intervalMinutes float64, count int) (*CountdownReminder, error) {
	if intervalMinutes <= 0 || count <= 0 {
		return nil, fmt.Errorf("countdown reminder needs a positive interval and count")
	}
	r := &CountdownReminder{
		ID:              uuid.NewString(),
		Content:         content,
		IntervalMinutes: intervalMinutes,
		RemainingCount:  count,
	}
	r.SetNextTrigger(s.now().Add(time.Duration(intervalMinutes * float64(time.Minute))))
	err := s.mutateCurrent(func(ch *Character) error {
		ch.Reminders.Custom = append(ch.Reminders.Custom, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveCountdown deletes a countdown reminder by id.
func (s *Store) RemoveCountdown(id string) error {
	return s.mutateCurrent(func(ch *Character) error {
		for i, r := range ch.Reminders.Custom {
			if r.ID == id {
				ch.Reminders.Custom = append(ch.Reminders.Custom[:i], ch.Reminders.Custom[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("countdown reminder %s not found", id)
	})
}

// AddMedication creates a medication reminder.
func (s *Store) AddMedication(name string, times []string, notes string) (string, error) {
	id := uuid.NewString()
	err := s.mutateCurrent(func(ch *Character) error {
		ch.Health.Medications = append(ch.Health.Medications, &MedicationReminder{
			ID:      id,
			Name:    name,
			Times:   times,
			Notes:   notes,
			Enabled: true,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveMedication deletes a medication reminder by id.
func (s *Store) RemoveMedication(id string) error {
	return s.mutateCurrent(func(ch *Character) error {
		for i, m := range ch.Health.Medications {
			if m.ID == id {
				ch.Health.Medications = append(ch.Health.Medications[:i], ch.Health.Medications[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("medication reminder %s not found", id)
	})
}

// AppendChat records one conversation turn, keeping the most recent 20.
func (s *Store) AppendChat(role, content string) error {
	return s.mutateCurrent(func(ch *Character) error {
		ch.ChatHistory = append(ch.ChatHistory, ChatMessage{Role: role, Content: content})
		if len(ch.ChatHistory) > 20 {
			ch.ChatHistory = ch.ChatHistory[len(ch.ChatHistory)-20:]
		}
		return nil
	})
}

// SetLastExit persists the shutdown timestamp for the offline-duration
// welcome on next start.
func (s *Store) SetLastExit(at time.Time) error {
	return s.mutateCurrent(func(ch *Character) error {
		ch.LastExitTime = FormatTimestamp(at)
		return nil
	})
}

// SetBriefingDate records that the daily briefing ran for the given date.
func (s *Store) SetBriefingDate(date string) error {
	return s.mutateCurrent(func(ch *Character) error {
		ch.LastBriefingDate = date
		return nil
	})
}

// ReconcileDaily runs the rollover on the active character, returning whether
// anything changed (and was persisted).
func (s *Store) ReconcileDaily() (bool, error) {
	changed := false
	err := s.mutateCurrent(func(ch *Character) error {
		changed = Reconcile(ch, DateString(s.now()))
		return nil
	})
	return changed, err
}

// --- defaults ---

const defaultAPIBaseURL = "https://api.openai.com/v1"

const defaultPersona = "You are a strict but caring personal health assistant with a dry sense of humor."

func defaultDocument(now time.Time) *Document {
	ch := defaultCharacter("char_"+uuid.NewString()[:8], "Assistant", now)
	return &Document{
		APIBaseURL:         defaultAPIBaseURL,
		Model:              "gpt-4o-mini",
		MaxHistoryMessages: 10,
		CurrentCharacter:   ch.ID,
		Characters:         map[string]*Character{ch.ID: ch},
	}
}

func defaultCharacter(id, name string, now time.Time) *Character {
	ch := &Character{
		ID:       id,
		Name:     name,
		Persona:  defaultPersona,
		UserName: "User",
	}
	fillCharacterDefaults(ch, now)
	return ch
}

// fillCharacterDefaults populates zero-valued config with the stock setup so
// migrated and hand-edited documents stay schedulable.
func fillCharacterDefaults(ch *Character, now time.Time) {
	if ch.DailyTargetCups == 0 {
		ch.DailyTargetCups = 7.5
	}
	if ch.LastResetDate == "" {
		ch.LastResetDate = DateString(now)
	}
	if ch.RandomChatInterval == 0 {
		ch.RandomChatInterval = 60
	}
	if ch.WeeklySchedule == nil {
		ch.WeeklySchedule = map[string]*DaySchedule{
			"Monday":    {Enabled: true, Start: "09:00", End: "18:00"},
			"Tuesday":   {Enabled: true, Start: "09:00", End: "18:00"},
			"Wednesday": {Enabled: true, Start: "09:00", End: "18:00"},
			"Thursday":  {Enabled: true, Start: "09:00", End: "18:00"},
			"Friday":    {Enabled: true, Start: "09:00", End: "18:00"},
			"Saturday":  {Enabled: false, Start: "10:00", End: "17:00"},
			"Sunday":    {Enabled: false, Start: "10:00", End: "17:00"},
		}
	}
	if ch.Reminders.Water == nil {
		ch.Reminders.Water = &IntervalReminder{Enabled: true, Type: "interval", IntervalMinutes: 60}
	}
	if ch.Reminders.Meal == nil {
		ch.Reminders.Meal = &FixedTimesReminder{Enabled: true, Type: "fixed", Times: []string{"08:00", "12:00", "18:30"}}
	}
	if ch.Reminders.Sitting == nil {
		ch.Reminders.Sitting = &IntervalReminder{Enabled: true, Type: "interval", IntervalMinutes: 45}
	}
	if ch.Reminders.Relax == nil {
		ch.Reminders.Relax = &IntervalReminder{Enabled: true, Type: "interval", IntervalMinutes: 90}
	}
	if ch.Reminders.Custom == nil {
		ch.Reminders.Custom = []*CountdownReminder{}
	}
}

// TodayWork returns today's work window for ch, or ok=false when today is
// not an enabled work day.
func TodayWork(ch *Character, now time.Time) (start, end time.Time, ok bool) {
	day, found := ch.WeeklySchedule[Weekday(now)]
	if !found || day == nil || !day.Enabled {
		return time.Time{}, time.Time{}, false
	}
	s, err := ClockOnDay(day.Start, now)
	if err != nil {
		logging.Warnf("malformed work start %q: %v", day.Start, err)
		return time.Time{}, time.Time{}, false
	}
	e, err := ClockOnDay(day.End, now)
	if err != nil {
		logging.Warnf("malformed work end %q: %v", day.End, err)
		return time.Time{}, time.Time{}, false
	}
	return s, e, true
}
