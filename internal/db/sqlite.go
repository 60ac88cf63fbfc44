package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deskpal/deskpal/internal/db/migrations"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/deskpal/deskpal/internal/logging"
)

// NewSQLite opens the history database at path, runs migrations, and returns
// a History handle.
func NewSQLite(path string) (*History, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode with a single connection. SQLite doesn't handle concurrent
	// writers well, so all access is serialized through one connection.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Infof("History database initialized at %s", path)
	return &History{db: db}, nil
}
