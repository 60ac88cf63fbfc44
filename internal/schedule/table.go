package schedule

import (
	"sort"
	"sync"
	"time"
)

// Entry is one scheduled reminder with its computed fire time.
type Entry struct {
	Item
	FireAt time.Time
}

// Table maps reminder identity to next-fire time. It is rebuilt whenever
// configuration changes (settings saved, character switched, reminder CRUD)
// and entries are recomputed individually after each fire. Disabled or
// exhausted reminders have no entry, never a stale one.
type Table struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewTable returns an empty schedule table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Rebuild recomputes the whole table from items at wall-clock now.
// Items whose calculator yields no next fire are dropped.
func (t *Table) Rebuild(items []Item, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]Entry, len(items))
	for _, item := range items {
		if fire, ok := NextFire(item.Input, now); ok {
			t.entries[item.Key] = Entry{Item: item, FireAt: fire}
		}
	}
}

// Set recomputes the single entry for item, scheduling or unscheduling it.
func (t *Table) Set(item Item, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fire, ok := NextFire(item.Input, now); ok {
		t.entries[item.Key] = Entry{Item: item, FireAt: fire}
	} else {
		delete(t.entries, item.Key)
	}
}

// Remove unschedules the entry for key.
func (t *Table) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Due returns every entry whose fire time has been reached at now, in a
// fixed key order so simultaneous reminders always fire deterministically.
// Entries are not consumed; callers must recompute or remove fired keys
// before the next tick.
func (t *Table) Due(now time.Time) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []Entry
	for _, key := range t.sortedKeysLocked() {
		e := t.entries[key]
		if !now.Before(e.FireAt) {
			due = append(due, e)
		}
	}
	return due
}

// Snapshot returns every entry in fixed key order, for inspection.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, key := range t.sortedKeysLocked() {
		out = append(out, t.entries[key])
	}
	return out
}

// FireAt reports the scheduled fire time for key.
func (t *Table) FireAt(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return e.FireAt, ok
}

// Len reports the number of scheduled entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) sortedKeysLocked() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
