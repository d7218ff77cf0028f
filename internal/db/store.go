package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/filipezaidan/google-meet-captions/internal/caption"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the keyed session collection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL.
func Open(path string) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database without write access.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a full snapshot of sess. The previous snapshot with the same
// id is replaced, never merged.
func (s *Store) Save(ctx context.Context, sess *caption.Session) error {
	records := sess.Records
	if records == nil {
		records = []caption.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (sessionId, meetingUrl, started, updated, recordCount, records)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sessionId) DO UPDATE SET
			meetingUrl  = excluded.meetingUrl,
			started     = excluded.started,
			updated     = excluded.updated,
			recordCount = excluded.recordCount,
			records     = excluded.records
	`, sess.SessionID, sess.MeetingURL, millis(sess.Started), millis(sess.Updated), len(records), string(data))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.SessionID, err)
	}
	return nil
}

// Load returns the full session, or caption.ErrSessionNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (*caption.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sessionId, meetingUrl, started, updated, recordCount, records
		FROM sessions
		WHERE sessionId = ?
	`, sessionID)

	var r sessionRow
	if err := row.Scan(&r.SessionID, &r.MeetingURL, &r.Started, &r.Updated,
		&r.RecordCount, &r.Records); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caption.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess := &caption.Session{
		SessionID:   r.SessionID,
		MeetingURL:  r.MeetingURL,
		Started:     timeFromMillis(r.Started),
		Updated:     timeFromMillis(r.Updated),
		RecordCount: r.RecordCount,
		Records:     []caption.Record{},
	}
	if err := json.Unmarshal([]byte(r.Records), &sess.Records); err != nil {
		return nil, fmt.Errorf("decode records of %s: %w", sessionID, err)
	}
	return sess, nil
}

// List returns every session's summary, most recently updated first.
func (s *Store) List(ctx context.Context) ([]caption.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sessionId, meetingUrl, started, updated, recordCount
		FROM sessions
		ORDER BY updated DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sums := []caption.Summary{}
	for rows.Next() {
		var r sessionRow
		if err := rows.Scan(&r.SessionID, &r.MeetingURL, &r.Started, &r.Updated, &r.RecordCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sums = append(sums, caption.Summary{
			SessionID:   r.SessionID,
			MeetingURL:  r.MeetingURL,
			Started:     timeFromMillis(r.Started),
			Updated:     timeFromMillis(r.Updated),
			RecordCount: r.RecordCount,
		})
	}
	return sums, rows.Err()
}
