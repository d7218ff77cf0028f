// Package caption turns snapshots of a live caption region into a
// deduplicated, append-and-update stream of speaker turns.
package caption

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a lookup references an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// Record is one caption turn: a speaker label and the utterance text as the
// host page currently renders it.
type Record struct {
	ID        int       `json:"id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one continuous recording interval for one meeting.
type Session struct {
	SessionID   string    `json:"sessionId"`
	MeetingURL  string    `json:"meetingUrl"`
	Started     time.Time `json:"started"`
	Updated     time.Time `json:"updated"`
	RecordCount int       `json:"recordCount"`
	Records     []Record  `json:"records"`
}

// Summary is a Session without its records, used for listings.
type Summary struct {
	SessionID   string    `json:"sessionId"`
	MeetingURL  string    `json:"meetingUrl"`
	Started     time.Time `json:"started"`
	Updated     time.Time `json:"updated"`
	RecordCount int       `json:"recordCount"`
}

// Node is one direct child of the caption region. Handle is the stable
// identity the page observer assigned to the element; it survives text
// mutations and is never reused for a different element.
type Node struct {
	Handle string `json:"handle"`
	Text   string `json:"text"`
}

// NewSession returns an empty session started at now.
func NewSession(id, meetingURL string, now time.Time) *Session {
	return &Session{
		SessionID:  id,
		MeetingURL: meetingURL,
		Started:    now,
		Updated:    now,
		Records:    []Record{},
	}
}

// Summary returns the listing fields of s.
func (s *Session) Summary() Summary {
	return Summary{
		SessionID:   s.SessionID,
		MeetingURL:  s.MeetingURL,
		Started:     s.Started,
		Updated:     s.Updated,
		RecordCount: s.RecordCount,
	}
}

// Clone returns a deep copy of s. Snapshots are written from clones so later
// revisions of the live session never leak into an already written snapshot.
func (s *Session) Clone() *Session {
	c := *s
	c.Records = make([]Record, len(s.Records))
	copy(c.Records, s.Records)
	return &c
}
