package schedule

import (
	"strings"
	"time"

	"github.com/deskpal/deskpal/internal/store"
)

// Kind names the trigger family an item belongs to, carried through to the
// generation layer.
type Kind string

const (
	KindWater      Kind = "water"
	KindMeal       Kind = "meal"
	KindSitting    Kind = "sitting"
	KindRelax      Kind = "relax"
	KindChat       Kind = "chat"
	KindMedication Kind = "medication"
	KindCustom     Kind = "custom"
)

// Item is one schedulable reminder derived from a character's config.
type Item struct {
	Key   string // stable table key, e.g. "water" or "med:<id>"
	Kind  Kind
	RefID string // medication/countdown id, empty for built-ins
	Label string // medication name / countdown content
	Input Input
}

// FromCharacter derives every schedulable item from a character snapshot at
// wall-clock now. Disabled reminders are still emitted (with Enabled=false)
// so the table can drop their stale entries.
func FromCharacter(ch *store.Character, now time.Time) []Item {
	if ch == nil {
		return nil
	}

	items := make([]Item, 0, 8)
	items = append(items,
		waterItem(ch, now),
		fixedItem("meal", KindMeal, ch.Reminders.Meal),
		intervalItem("sitting", KindSitting, ch.Reminders.Sitting),
		intervalItem("relax", KindRelax, ch.Reminders.Relax),
		chatItem(ch),
	)
	for _, med := range ch.Health.Medications {
		items = append(items, Item{
			Key:   "med:" + med.ID,
			Kind:  KindMedication,
			RefID: med.ID,
			Label: med.Name,
			Input: Input{Tag: TagFixed, Enabled: med.Enabled, Times: med.Times},
		})
	}
	for _, r := range ch.Reminders.Custom {
		items = append(items, countdownItem(r))
	}
	return items
}

// ItemFor re-derives the single item for key from a fresh snapshot, used to
// recompute one entry after it fires. ok=false means the reminder no longer
// exists (e.g. an exhausted countdown).
func ItemFor(ch *store.Character, key string, now time.Time) (Item, bool) {
	switch {
	case key == "water":
		return waterItem(ch, now), true
	case key == "meal":
		return fixedItem("meal", KindMeal, ch.Reminders.Meal), true
	case key == "sitting":
		return intervalItem("sitting", KindSitting, ch.Reminders.Sitting), true
	case key == "relax":
		return intervalItem("relax", KindRelax, ch.Reminders.Relax), true
	case key == "chat":
		return chatItem(ch), true
	case strings.HasPrefix(key, "med:"):
		id := strings.TrimPrefix(key, "med:")
		for _, med := range ch.Health.Medications {
			if med.ID == id {
				return Item{
					Key:   key,
					Kind:  KindMedication,
					RefID: id,
					Label: med.Name,
					Input: Input{Tag: TagFixed, Enabled: med.Enabled, Times: med.Times},
				}, true
			}
		}
	case strings.HasPrefix(key, "custom:"):
		id := strings.TrimPrefix(key, "custom:")
		for _, r := range ch.Reminders.Custom {
			if r.ID == id {
				return countdownItem(r), true
			}
		}
	}
	return Item{}, false
}

func waterItem(ch *store.Character, now time.Time) Item {
	in := Input{Tag: TagWater, TargetCups: ch.DailyTargetCups, DrunkCups: ch.CupsDrunkToday}
	if r := ch.Reminders.Water; r != nil {
		in.Enabled = r.Enabled
	}
	if start, end, ok := store.TodayWork(ch, now); ok {
		in.WorkDay = true
		in.WorkStart = start
		in.WorkEnd = end
	}
	return Item{Key: "water", Kind: KindWater, Input: in}
}

func intervalItem(key string, kind Kind, r *store.IntervalReminder) Item {
	in := Input{Tag: TagInterval}
	if r != nil {
		in.Enabled = r.Enabled
		in.Interval = time.Duration(r.IntervalMinutes * float64(time.Minute))
		if last, ok := r.LastTriggeredTime(); ok {
			in.LastTriggered = last
		}
	}
	return Item{Key: key, Kind: kind, Input: in}
}

func fixedItem(key string, kind Kind, r *store.FixedTimesReminder) Item {
	in := Input{Tag: TagFixed}
	if r != nil {
		in.Enabled = r.Enabled
		in.Times = r.Times
	}
	return Item{Key: key, Kind: kind, Input: in}
}

func chatItem(ch *store.Character) Item {
	return Item{
		Key:  "chat",
		Kind: KindChat,
		Input: Input{
			Tag:      TagInterval,
			Enabled:  ch.EnableRandomChat,
			Interval: time.Duration(ch.RandomChatInterval * float64(time.Minute)),
		},
	}
}

func countdownItem(r *store.CountdownReminder) Item {
	in := Input{Tag: TagCountdown, Enabled: true, RemainingCount: r.RemainingCount}
	if next, ok := r.NextTrigger(); ok {
		in.NextTrigger = next
	}
	return Item{
		Key:   "custom:" + r.ID,
		Kind:  KindCustom,
		RefID: r.ID,
		Label: r.Content,
		Input: in,
	}
}
