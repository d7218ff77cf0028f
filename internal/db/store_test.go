package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/recorder"

	_ "modernc.org/sqlite"
)

var _ recorder.Store = (*Store)(nil)

// createTestDB creates an in-memory SQLite database with the sessions schema.
func createTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return db
}

func testSession(id string, updated time.Time, texts ...string) *caption.Session {
	sess := caption.NewSession(id, "https://meet.google.com/abc-defg-hij", updated.Add(-time.Minute))
	sess.Updated = updated
	for i, text := range texts {
		sess.Records = append(sess.Records, caption.Record{
			ID:        i + 1,
			Speaker:   "Alice",
			Text:      text,
			Timestamp: updated,
		})
	}
	sess.RecordCount = len(sess.Records)
	return sess
}

func TestSaveAndLoad(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := &Store{db: rawDB}
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 123_000_000, time.UTC)

	if err := store.Save(ctx, testSession("sess-1", now, "hello", "world")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.RecordCount != 2 || len(got.Records) != 2 {
		t.Fatalf("records = %d/%d, want 2/2", got.RecordCount, len(got.Records))
	}
	if got.Records[1].Text != "world" {
		t.Errorf("records[1].Text = %q, want %q", got.Records[1].Text, "world")
	}
	if !got.Updated.Equal(now) {
		t.Errorf("updated = %v, want %v", got.Updated, now)
	}
	if !got.Records[0].Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", got.Records[0].Timestamp, now)
	}
	if got.MeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("meetingUrl = %q", got.MeetingURL)
	}
}

func TestSaveOverwrites(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := &Store{db: rawDB}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := store.Save(ctx, testSession("sess-1", now, "a", "b", "c")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A later snapshot replaces the row wholesale.
	if err := store.Save(ctx, testSession("sess-1", now.Add(time.Second), "only")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RecordCount != 1 || len(got.Records) != 1 {
		t.Errorf("records = %d/%d, want 1/1", got.RecordCount, len(got.Records))
	}

	var rows int
	if err := rawDB.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
}

func TestLoadNotFound(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := &Store{db: rawDB}

	_, err := store.Load(context.Background(), "nonexistent")
	if !errors.Is(err, caption.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestListMostRecentlyUpdatedFirst(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := &Store{db: rawDB}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	store.Save(ctx, testSession("sess-old", now.Add(-time.Hour), "x"))
	store.Save(ctx, testSession("sess-new", now, "x", "y"))
	store.Save(ctx, testSession("sess-mid", now.Add(-time.Minute)))

	sums, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sums))
	}

	want := []string{"sess-new", "sess-mid", "sess-old"}
	for i, id := range want {
		if sums[i].SessionID != id {
			t.Errorf("sums[%d] = %q, want %q", i, sums[i].SessionID, id)
		}
	}
	if sums[0].RecordCount != 2 {
		t.Errorf("recordCount = %d, want 2", sums[0].RecordCount)
	}
}

func TestListEmpty(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := &Store{db: rawDB}

	sums, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if sums == nil || len(sums) != 0 {
		t.Errorf("sums = %#v, want empty non-nil slice", sums)
	}
}

func TestOpenFileAndReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "captions.sqlite")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.Save(context.Background(), testSession("sess-1", now, "persisted")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	got, err := ro.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Records[0].Text != "persisted" {
		t.Errorf("text = %q, want %q", got.Records[0].Text, "persisted")
	}

	if err := ro.Save(context.Background(), testSession("sess-2", now)); err == nil {
		t.Error("expected read-only store to reject writes")
	}
}

func TestOpenMemory(t *testing.T) {
	store, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Save(context.Background(), testSession("sess-1", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
