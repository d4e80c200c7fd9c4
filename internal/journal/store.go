// Package journal keeps a SQLite record of control runs and the diagnostic
// events raised while they ran.
package journal

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	started_at      TEXT NOT NULL,
	finished_at     TEXT,
	transport       TEXT NOT NULL,
	config_json     TEXT NOT NULL,
	steps           INTEGER NOT NULL DEFAULT 0,
	ticks           INTEGER NOT NULL DEFAULT 0,
	optimizer_runs  INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	tick          INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	junction_id   TEXT,
	detail        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS run_events_run ON run_events(run_id, id);
`

// #endregion schema

// #region store-struct
// Store is the run journal.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens (or creates) the journal at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying handle so the trace tables can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
