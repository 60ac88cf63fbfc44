// Package db records every reminder firing in a local SQLite database so
// users can review what fired, when, and whether a message was produced.
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// History is the trigger-history store.
type History struct {
	db *sql.DB
}

// TriggerRecord is one row of trigger history.
type TriggerRecord struct {
	ID          int64
	CharacterID string
	Kind        string
	Label       string
	FiredAt     time.Time
	Outcome     string
	Error       string
}

// Outcome values for a firing.
const (
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// InsertTrigger appends one firing record.
func (h *History) InsertTrigger(rec TriggerRecord) error {
	_, err := h.db.Exec(
		`INSERT INTO trigger_history (character_id, kind, label, fired_at, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.CharacterID, rec.Kind, rec.Label, rec.FiredAt.UTC().Format(time.RFC3339), rec.Outcome, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trigger record: %w", err)
	}
	return nil
}

// ListRecent returns the most recent firings, newest first.
func (h *History) ListRecent(limit int) ([]TriggerRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(
		`SELECT id, character_id, kind, label, fired_at, outcome, error
		 FROM trigger_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger history: %w", err)
	}
	defer rows.Close()

	var out []TriggerRecord
	for rows.Next() {
		var rec TriggerRecord
		var firedAt string
		if err := rows.Scan(&rec.ID, &rec.CharacterID, &rec.Kind, &rec.Label, &firedAt, &rec.Outcome, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan trigger record: %w", err)
		}
		rec.FiredAt, _ = time.Parse(time.RFC3339, firedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
