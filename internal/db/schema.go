// Package db provides SQLite persistence for caption sessions.
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// schema holds one row per session. records is the JSON array of caption
// records; started/updated are unix milliseconds so the updated index
// orders correctly.
const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		sessionId   TEXT PRIMARY KEY,
		meetingUrl  TEXT NOT NULL,
		started     INTEGER NOT NULL,
		updated     INTEGER NOT NULL,
		recordCount INTEGER NOT NULL,
		records     TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS sessions_updated ON sessions(updated);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// sessionRow mirrors the sessions table.
type sessionRow struct {
	SessionID   string
	MeetingURL  string
	Started     int64
	Updated     int64
	RecordCount int
	Records     string
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
