// Package store owns the persistent character document: one JSON file holding
// global settings plus every character's persona, reminder configs and daily
// counters. The file is the single source of truth; all mutation goes through
// read-current, mutate-in-memory, write-entire-document. Keys this version
// does not interpret round-trip unchanged so older and newer builds can share
// the same document.
package store

import (
	"encoding/json"
	"time"
)

// Document is the whole on-disk configuration document.
type Document struct {
	APIBaseURL         string                     `json:"api_base_url"`
	APIKey             string                     `json:"api_key"`
	Model              string                     `json:"model"`
	MaxHistoryMessages int                        `json:"max_history_messages"`
	WeatherCity        string                     `json:"weather_city"`
	CurrentCharacter   string                     `json:"current_character"`
	Characters         map[string]*Character      `json:"characters"`
	Extra              map[string]json.RawMessage `json:"-"`
}

// Character is one persona with its own reminders, counters and history.
type Character struct {
	ID                 string                     `json:"id"`
	Name               string                     `json:"name"`
	Persona            string                     `json:"persona"`
	UserIdentity       string                     `json:"user_identity"`
	UserName           string                     `json:"user_name"`
	DailyTargetCups    float64                    `json:"daily_target_cups"`
	CupsDrunkToday     float64                    `json:"cups_drunk_today"`
	LastResetDate      string                     `json:"last_reset_date"`
	LastBriefingDate   string                     `json:"last_daily_briefing_date"`
	WeeklySchedule     map[string]*DaySchedule    `json:"weekly_schedule"`
	EnableRandomChat   bool                       `json:"enable_random_chat"`
	RandomChatInterval float64                    `json:"random_chat_interval"`
	Reminders          Reminders                  `json:"reminders"`
	ChatHistory        []ChatMessage              `json:"chat_history"`
	Anniversaries      []Anniversary              `json:"anniversaries"`
	Health             Health                     `json:"health"`
	LastExitTime       string                     `json:"last_exit_time,omitempty"`
	Extra              map[string]json.RawMessage `json:"-"`
}

// DaySchedule is the work window for one weekday.
type DaySchedule struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ChatMessage is one turn of the per-character conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Anniversary is a yearly MM-DD dated entry folded into daily briefings.
type Anniversary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"` // MM-DD
	Type  string `json:"type"`
	Notes string `json:"notes,omitempty"`
}

// Health groups health-related reminder state. Fields this build does not
// interpret (period tracker, future additions) pass through via Extra.
type Health struct {
	Medications []*MedicationReminder      `json:"medication_reminders"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// Reminders holds the per-character reminder configs, one field per built-in
// kind plus the user-created countdown list.
type Reminders struct {
	Water   *IntervalReminder          `json:"water,omitempty"`
	Meal    *FixedTimesReminder        `json:"meal,omitempty"`
	Sitting *IntervalReminder          `json:"sitting,omitempty"`
	Relax   *IntervalReminder          `json:"relax,omitempty"`
	Custom  []*CountdownReminder       `json:"custom"`
	Extra   map[string]json.RawMessage `json:"-"`
}

// IntervalReminder fires every IntervalMinutes, resuming from LastTriggered
// across restarts. The water variant is additionally gated by work hours.
type IntervalReminder struct {
	Enabled         bool    `json:"enabled"`
	Type            string  `json:"type"` // on-disk discriminator, always "interval"
	IntervalMinutes float64 `json:"interval"`
	LastTriggered   *string `json:"last_triggered"`
}

// FixedTimesReminder fires at fixed HH:MM times of day.
type FixedTimesReminder struct {
	Enabled       bool     `json:"enabled"`
	Type          string   `json:"type"` // on-disk discriminator, always "fixed"
	Times         []string `json:"times"`
	LastTriggered *string  `json:"last_triggered"`
}

// MedicationReminder fires at fixed HH:MM times, independently per id.
type MedicationReminder struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Times   []string `json:"times"`
	Notes   string   `json:"notes,omitempty"`
	Enabled bool     `json:"enabled"`
}

// CountdownReminder is a finite-repeat custom reminder. NextTriggerTime is
// advanced on every fire; the entry self-deletes when RemainingCount hits 0.
type CountdownReminder struct {
	ID              string  `json:"id"`
	Content         string  `json:"content"`
	IntervalMinutes float64 `json:"interval"`
	RemainingCount  int     `json:"remaining_count"`
	NextTriggerTime *string `json:"next_trigger_time,omitempty"`
}

// LastTriggeredTime parses the persisted trigger timestamp.
// Returns false when unset or unparseable (treated as never triggered).
func (r *IntervalReminder) LastTriggeredTime() (time.Time, bool) {
	return parseTimestampPtr(r.LastTriggered)
}

// SetLastTriggered records a trigger timestamp.
func (r *IntervalReminder) SetLastTriggered(t time.Time) {
	s := FormatTimestamp(t)
	r.LastTriggered = &s
}

// ClearLastTriggered resets the trigger timestamp to null.
func (r *IntervalReminder) ClearLastTriggered() {
	r.LastTriggered = nil
}

// SetLastTriggered records a trigger timestamp.
func (r *FixedTimesReminder) SetLastTriggered(t time.Time) {
	s := FormatTimestamp(t)
	r.LastTriggered = &s
}

// NextTrigger parses the persisted next fire time.
func (r *CountdownReminder) NextTrigger() (time.Time, bool) {
	return parseTimestampPtr(r.NextTriggerTime)
}

// SetNextTrigger records the next fire time.
func (r *CountdownReminder) SetNextTrigger(t time.Time) {
	s := FormatTimestamp(t)
	r.NextTriggerTime = &s
}

func parseTimestampPtr(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	return ParseTimestamp(*s)
}

// --- unknown-key passthrough ---
//
// Each level that carries user-editable or legacy keys marshals through a raw
// map: known fields win, everything else survives verbatim.

var documentKeys = []string{
	"api_base_url", "api_key", "model", "max_history_messages",
	"weather_city", "current_character", "characters",
}

var characterKeys = []string{
	"id", "name", "persona", "user_identity", "user_name",
	"daily_target_cups", "cups_drunk_today", "last_reset_date",
	"last_daily_briefing_date", "weekly_schedule", "enable_random_chat",
	"random_chat_interval", "reminders", "chat_history", "anniversaries",
	"health", "last_exit_time",
}

var remindersKeys = []string{"water", "meal", "sitting", "relax", "custom"}

var healthKeys = []string{"medication_reminders"}

func splitExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

func mergeExtra(knownJSON []byte, extra map[string]json.RawMessage) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for k, v := range extra {
		merged[k] = v
	}
	known := map[string]json.RawMessage{}
	if err := json.Unmarshal(knownJSON, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, documentKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*d = Document(a)
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	type alias Document
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, d.Extra)
}

func (c *Character) UnmarshalJSON(data []byte) error {
	type alias Character
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, characterKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*c = Character(a)
	return nil
}

func (c Character) MarshalJSON() ([]byte, error) {
	type alias Character
	known, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, c.Extra)
}

func (r *Reminders) UnmarshalJSON(data []byte) error {
	type alias Reminders
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, remindersKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*r = Reminders(a)
	return nil
}

func (r Reminders) MarshalJSON() ([]byte, error) {
	type alias Reminders
	known, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, r.Extra)
}

func (h *Health) UnmarshalJSON(data []byte) error {
	type alias Health
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, healthKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*h = Health(a)
	return nil
}

func (h Health) MarshalJSON() ([]byte, error) {
	type alias Health
	known, err := json.Marshal(alias(h))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, h.Extra)
}
