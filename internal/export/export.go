// Package export writes a session's caption records as a standalone JSON
// file.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
)

const (
	exportFileMode  = 0o644
	exportDirMode   = 0o755
	tempFilePattern = ".export-*.json.tmp"
)

// FileName returns the export file name for a session.
func FileName(sessionID string) string {
	return filepath.Base(sessionID) + ".json"
}

// Marshal renders records as a pretty-printed JSON array in ascending id
// order. An empty session exports as [].
func Marshal(records []caption.Record) ([]byte, error) {
	sorted := make([]caption.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return data, nil
}

// WriteFile writes the export of s into dir and returns the file path. The
// file is written to a temp name first so a reader never sees half of it.
func WriteFile(dir string, s *caption.Session) (string, error) {
	data, err := Marshal(s.Records)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, exportDirMode); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create temp export file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := tmp.Chmod(exportFileMode); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	path := filepath.Join(dir, FileName(s.SessionID))
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("rename export file: %w", err)
	}
	return path, nil
}

// Transcript renders s as a short header followed by one
// "[HH:MM:SS] Speaker: text" line per record.
func Transcript(s *caption.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", s.SessionID)
	if s.MeetingURL != "" {
		fmt.Fprintf(&b, "Meeting %s\n", s.MeetingURL)
	}
	fmt.Fprintf(&b, "Started %s, %d records\n\n", s.Started.Format("2006-01-02 15:04:05 MST"), s.RecordCount)
	for _, r := range s.Records {
		fmt.Fprintf(&b, "[%s] %s: %s\n", r.Timestamp.Format("15:04:05"), r.Speaker, r.Text)
	}
	return b.String()
}
