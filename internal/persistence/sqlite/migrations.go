package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// Timestamps are stored as fixed-width UTC text (see timeLayout) so that text
// ordering matches time ordering.
var migrations = []migration{
	{
		version: 1,
		name:    "records",
		sql: `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  distance_km REAL NOT NULL DEFAULT 0 CHECK(distance_km >= 0),
  duration_minutes INTEGER NOT NULL DEFAULT 0 CHECK(duration_minutes >= 0),
  training_type TEXT NOT NULL CHECK(training_type IN ('Tiro', 'Longo', 'Rodagem')),
  location TEXT NOT NULL DEFAULT '',
  external_id INTEGER UNIQUE,
  external_name TEXT,
  pace TEXT,
  average_speed_kmh REAL,
  total_elevation_gain_m REAL,
  occurred_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_occurred_at ON runs(occurred_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS books (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  author TEXT NOT NULL DEFAULT '',
  total_pages INTEGER NOT NULL DEFAULT 0 CHECK(total_pages >= 0),
  current_page INTEGER NOT NULL DEFAULT 0 CHECK(current_page >= 0),
  cover_url TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'reading',
  rating INTEGER CHECK(rating BETWEEN 1 AND 10),
  summary TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workouts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  focus TEXT NOT NULL,
  duration_minutes INTEGER NOT NULL CHECK(duration_minutes >= 0),
  effort INTEGER NOT NULL DEFAULT 0,
  occurred_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS work_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tasks_completed INTEGER NOT NULL DEFAULT 0 CHECK(tasks_completed >= 0),
  productivity INTEGER NOT NULL DEFAULT 0,
  notes TEXT NOT NULL DEFAULT '',
  occurred_at TEXT NOT NULL
);
`,
	},
}

// Migrate implements persistence.Migrator.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration version %d: %w", m.version, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration version %d: %w", m.version, err)
		}
	}
	return nil
}
