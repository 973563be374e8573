package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one schema change.
type Migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Deliveries table",
		Up:          migrationV1Up,
	},
	{
		Version:     2,
		Description: "Per-backend attempts",
		Up:          migrationV2Up,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS deliveries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id      TEXT NOT NULL UNIQUE,
    started_ns      INTEGER NOT NULL,
    duration_ns     INTEGER NOT NULL,
    target          TEXT NOT NULL,
    app             TEXT,
    pid             INTEGER,
    profile         TEXT,
    strategy        TEXT,
    backend         TEXT,
    content         TEXT,
    attempts        INTEGER NOT NULL,
    success         INTEGER NOT NULL,
    error_kind      TEXT NOT NULL,
    diagnostic      TEXT,
    length          INTEGER NOT NULL,
    fingerprint     TEXT
);

CREATE INDEX IF NOT EXISTS idx_deliveries_started ON deliveries(started_ns);
CREATE INDEX IF NOT EXISTS idx_deliveries_app ON deliveries(app, started_ns);
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS attempts (
    request_id      TEXT NOT NULL REFERENCES deliveries(request_id) ON DELETE CASCADE,
    ordinal         INTEGER NOT NULL,
    backend         TEXT NOT NULL,
    try             INTEGER NOT NULL,
    ok              INTEGER NOT NULL,
    duration_ns     INTEGER NOT NULL,
    error           TEXT,
    PRIMARY KEY (request_id, ordinal)
);
`

// migrate applies every pending migration, each in its own transaction.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (j *Journal) SchemaVersion() (int, error) {
	var v int
	if err := j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}
