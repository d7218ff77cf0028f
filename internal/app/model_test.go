package app

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/daemon"
)

func newTestModel() Model {
	m := New("/nonexistent/captions.sock")
	m.width = 100
	m.height = 30
	return m
}

func TestNewModel(t *testing.T) {
	m := New("/tmp/captions.sock")
	if m.connected {
		t.Error("new model should not be connected")
	}
	if m.recording {
		t.Error("new model should not be recording")
	}
	if !m.transcriptLive {
		t.Error("new model should be in live mode")
	}
	if m.focusedPanel != FocusSessions {
		t.Error("new model should focus sessions")
	}
}

func TestDaemonConnectError(t *testing.T) {
	m := newTestModel()

	updated, cmd := m.Update(DaemonConnectErrorMsg{Err: fmt.Errorf("connection refused")})
	model := updated.(Model)

	if model.connected {
		t.Error("should not be connected after error")
	}
	if !model.reconnecting {
		t.Error("should be reconnecting after connect error")
	}
	if cmd == nil {
		t.Error("connect error should schedule a reconnect")
	}
}

func TestReconnectDelayBacksOff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for attempt, w := range want {
		if got := reconnectDelay(attempt); got != w {
			t.Errorf("reconnectDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestStatusResponse(t *testing.T) {
	m := newTestModel()
	m.connected = true

	resp := StatusResponseMsg{Response: daemon.StatusResponse{
		IsRecording: true,
		Session:     &caption.Summary{SessionID: "abc-defg-hij-1", RecordCount: 3},
	}}

	updated, _ := m.Update(resp)
	model := updated.(Model)

	if !model.recording {
		t.Error("should be recording")
	}
	if model.sessionID != "abc-defg-hij-1" {
		t.Errorf("sessionID = %q, want %q", model.sessionID, "abc-defg-hij-1")
	}
	if model.statusText != "Recording" {
		t.Errorf("statusText = %q, want %q", model.statusText, "Recording")
	}
}

func TestStartFailureShowsMessage(t *testing.T) {
	m := newTestModel()
	m.connected = true

	updated, cmd := m.Update(StartResponseMsg{Response: daemon.StartResponse{
		Success: false,
		Message: "Captions container not found. Enable captions first.",
	}})
	model := updated.(Model)

	if model.recording {
		t.Error("failed start should not be recording")
	}
	if model.errorMessage != "Captions container not found. Enable captions first." {
		t.Errorf("errorMessage = %q", model.errorMessage)
	}
	if cmd == nil {
		t.Error("transient error should return a clear command")
	}

	updated, _ = model.Update(ClearTransientErrorMsg{})
	if msg := updated.(Model).errorMessage; msg != "" {
		t.Errorf("errorMessage after clear = %q, want empty", msg)
	}
}

func TestCaptionEventsUpsertByID(t *testing.T) {
	m := newTestModel()
	m.connected = true

	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	events := []daemon.Event{
		{Event: daemon.EventCaption, SessionID: "s-1", Record: &caption.Record{ID: 1, Speaker: "Alice", Text: "Hello", Timestamp: ts}},
		{Event: daemon.EventCaption, SessionID: "s-1", Record: &caption.Record{ID: 2, Speaker: "Bob", Text: "Hi", Timestamp: ts}},
		{Event: daemon.EventCaption, SessionID: "s-1", Record: &caption.Record{ID: 1, Speaker: "Alice", Text: "Hello there", Timestamp: ts.Add(time.Second)}},
	}
	for _, ev := range events {
		m.handleEvent(ev)
	}

	if len(m.live) != 2 {
		t.Fatalf("live = %d, want 2", len(m.live))
	}
	if m.live[0].Text != "Hello there" {
		t.Errorf("live[0].Text = %q, want %q", m.live[0].Text, "Hello there")
	}
	if m.live[1].Speaker != "Bob" {
		t.Errorf("live[1].Speaker = %q, want %q", m.live[1].Speaker, "Bob")
	}
}

func TestCaptionEventForNewSessionResetsLive(t *testing.T) {
	m := newTestModel()
	m.handleEvent(daemon.Event{Event: daemon.EventCaption, SessionID: "s-1", Record: &caption.Record{ID: 1, Speaker: "A", Text: "x"}})
	m.handleEvent(daemon.Event{Event: daemon.EventCaption, SessionID: "s-2", Record: &caption.Record{ID: 1, Speaker: "B", Text: "y"}})

	if m.sessionID != "s-2" {
		t.Errorf("sessionID = %q, want %q", m.sessionID, "s-2")
	}
	if len(m.live) != 1 || m.live[0].Speaker != "B" {
		t.Errorf("live = %+v, want only the new session's record", m.live)
	}
}

func TestBackfillKeepsIDOrder(t *testing.T) {
	m := newTestModel()
	m.recording = true
	m.sessionID = "s-1"
	m.handleEvent(daemon.Event{Event: daemon.EventCaption, SessionID: "s-1", Record: &caption.Record{ID: 3, Speaker: "C", Text: "third"}})

	updated, _ := m.Update(SessionLoadedMsg{SessionID: "s-1", Session: &caption.Session{
		SessionID: "s-1",
		Records: []caption.Record{
			{ID: 1, Speaker: "A", Text: "first"},
			{ID: 2, Speaker: "B", Text: "second"},
		},
	}})
	model := updated.(Model)

	if len(model.live) != 3 {
		t.Fatalf("live = %d, want 3", len(model.live))
	}
	for i, r := range model.live {
		if r.ID != i+1 {
			t.Errorf("live[%d].ID = %d, want %d", i, r.ID, i+1)
		}
	}
	if model.detail != nil {
		t.Error("backfill of the active session should not open the detail view")
	}
}

func TestStatusEvent(t *testing.T) {
	m := newTestModel()
	m.handleEvent(daemon.Event{Event: daemon.EventStatus, SessionID: "s-1", IsRecording: daemon.BoolPtr(true)})

	if !m.recording {
		t.Error("should be recording after status event")
	}
	if m.sessionID != "s-1" {
		t.Errorf("sessionID = %q, want %q", m.sessionID, "s-1")
	}

	m.handleEvent(daemon.Event{Event: daemon.EventStatus, SessionID: "s-1", IsRecording: daemon.BoolPtr(false)})
	if m.recording {
		t.Error("should be idle after stop status event")
	}
}

func TestTabTogglesFocus(t *testing.T) {
	m := newTestModel()
	m.connected = true

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	model := updated.(Model)
	if model.focusedPanel != FocusTranscript {
		t.Error("tab should switch to transcript")
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusedPanel != FocusSessions {
		t.Error("tab again should switch back to sessions")
	}
}

func TestSessionNavigation(t *testing.T) {
	m := newTestModel()
	m.connected = true
	m.sessions = []caption.Summary{
		{SessionID: "c-3"},
		{SessionID: "b-2"},
		{SessionID: "a-1"},
	}

	// j moves down
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model := updated.(Model)
	if model.selected != 1 {
		t.Errorf("after j, selected = %d, want 1", model.selected)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	updated, _ = updated.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.selected != 2 {
		t.Errorf("j past the end, selected = %d, want 2", model.selected)
	}

	// k moves up
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	model = updated.(Model)
	if model.selected != 1 {
		t.Errorf("after k, selected = %d, want 1", model.selected)
	}

	if got := model.exportTarget(); got != "b-2" {
		t.Errorf("exportTarget = %q, want %q", got, "b-2")
	}
}

func TestSessionsLoadedClampsSelection(t *testing.T) {
	m := newTestModel()
	m.selected = 5

	updated, _ := m.Update(SessionsLoadedMsg{Sessions: []caption.Summary{{SessionID: "a"}, {SessionID: "b"}}})
	model := updated.(Model)

	if model.selected != 1 {
		t.Errorf("selected = %d, want 1", model.selected)
	}
}

func TestOpenSessionAndReturnToLive(t *testing.T) {
	m := newTestModel()
	m.connected = true

	updated, _ := m.Update(SessionLoadedMsg{SessionID: "a-1", Session: &caption.Session{
		SessionID: "a-1",
		Records:   []caption.Record{{ID: 1, Speaker: "Alice", Text: "Saved line"}},
	}})
	model := updated.(Model)

	if model.detail == nil || model.detail.SessionID != "a-1" {
		t.Fatalf("detail = %+v, want a-1", model.detail)
	}
	if model.focusedPanel != FocusTranscript {
		t.Error("opening a session should focus the transcript")
	}
	if got := model.exportTarget(); got != "a-1" {
		t.Errorf("exportTarget = %q, want %q", got, "a-1")
	}
	if view := model.View(); !strings.Contains(view, "Saved line") {
		t.Error("view should show the opened session's records")
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(Model)
	if model.detail != nil {
		t.Error("esc should return to the live transcript")
	}
}

func TestSessionLoadedMissing(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(SessionLoadedMsg{SessionID: "gone"})
	model := updated.(Model)

	if model.errorMessage != "Session not found" {
		t.Errorf("errorMessage = %q", model.errorMessage)
	}
	if model.detail != nil {
		t.Error("missing session should not open the detail view")
	}
}

func TestExportResponse(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(ExportResponseMsg{Response: daemon.Result{Success: true, Message: "Download started", Path: "/tmp/a-1.json"}})
	model := updated.(Model)
	if model.notice != "Exported /tmp/a-1.json" {
		t.Errorf("notice = %q", model.notice)
	}

	updated, _ = model.Update(ExportResponseMsg{Response: daemon.Result{Success: false, Message: "Session not found"}})
	model = updated.(Model)
	if model.errorMessage != "Session not found" {
		t.Errorf("errorMessage = %q", model.errorMessage)
	}
}

func TestKeysIgnoredWhileDisconnected(t *testing.T) {
	m := newTestModel()
	m.sessions = []caption.Summary{{SessionID: "a-1"}}

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeySpace},
		{Type: tea.KeyEnter},
		{Type: tea.KeyRunes, Runes: []rune{'d'}},
		{Type: tea.KeyRunes, Runes: []rune{'r'}},
	} {
		if _, cmd := m.Update(key); cmd != nil {
			t.Errorf("key %q while disconnected returned a command", key.String())
		}
	}
}

func TestViewListsSessions(t *testing.T) {
	m := newTestModel()
	m.connected = true
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.sessions = []caption.Summary{
		{SessionID: "abc-defg-hij-1", RecordCount: 1200, Updated: now.Add(-3 * time.Minute)},
	}

	view := m.View()
	if !strings.Contains(view, "abc-defg-hij-1") {
		t.Error("view should list the session id")
	}
	if !strings.Contains(view, "1,200 rec") {
		t.Error("view should show a humanized record count")
	}
	if !strings.Contains(view, "3 minutes ago") {
		t.Error("view should show a relative updated time")
	}
}

func TestViewRendersWithSize(t *testing.T) {
	m := newTestModel()

	view := m.View()
	if view == "" {
		t.Error("view should not be empty")
	}
	if view == "Initializing..." {
		t.Error("view should not show initializing with size set")
	}
}

func TestViewWithoutSize(t *testing.T) {
	m := New("/tmp/captions.sock")
	view := m.View()
	if view != "Initializing..." {
		t.Errorf("view without size = %q, want 'Initializing...'", view)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	want := []string{"one two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("wrapText = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}
