// Package telemetry keeps a local, append-only record of what gitai
// commands ran, independent of whether the opt-in PostHog upload is
// enabled. Nothing in this package leaves the machine; it exists so
// `gitai doctor` can print a usage summary without a network call.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DBName is the spool file, rooted under the repo's gitai state
// directory's logs subdirectory (".git/gitai/logs/telemetry.db").
const DBName = "telemetry.db"

// Spool is a handle on the local event database for one repository.
type Spool struct {
	db *sql.DB
}

// Open creates (if necessary) and opens the telemetry spool under
// logsDir, which callers pass as filepath.Join(gitDir, "gitai", "logs")
// to share a directory with the session log files.
func Open(logsDir string) (*Spool, error) {
	if err := os.MkdirAll(logsDir, 0o750); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(logsDir, DBName))
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			event TEXT NOT NULL,
			props_json TEXT NOT NULL
		)
	`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("create events table: %w", err)
	}

	return &Spool{db: db}, nil
}

// Record appends one event. Best-effort by design: a telemetry write
// must never be the reason a command fails.
func (s *Spool) Record(ts int64, event string, props map[string]any) error {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		propsJSON = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT INTO events (ts, event, props_json) VALUES (?, ?, ?)`,
		ts, event, string(propsJSON),
	)
	return err
}

// Close closes the underlying database handle.
func (s *Spool) Close() error {
	return s.db.Close()
}

// EventCount is one row of Summary's per-event tally.
type EventCount struct {
	Event string
	Count int
}

// Summary reports how many times each event has been recorded, most
// frequent first, for `gitai doctor`'s local usage summary.
func (s *Spool) Summary() ([]EventCount, error) {
	rows, err := s.db.Query(`
		SELECT event, COUNT(*) AS n FROM events
		GROUP BY event
		ORDER BY n DESC, event ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []EventCount
	for rows.Next() {
		var c EventCount
		if err := rows.Scan(&c.Event, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
