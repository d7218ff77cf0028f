package daemon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
)

func TestCommandMarshalGetSession(t *testing.T) {
	data, err := json.Marshal(Command{Action: ActionGetSession, SessionID: "abc-defg-hij-1700000000000"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"action":"getSession","sessionId":"abc-defg-hij-1700000000000"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestCommandOmitsEmptySessionID(t *testing.T) {
	data, err := json.Marshal(Command{Action: ActionStop})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}

	if _, ok := raw["sessionId"]; ok {
		t.Error("stop command should omit sessionId")
	}
}

func TestStopResponseAlwaysCarriesRecordCount(t *testing.T) {
	data, err := json.Marshal(StopResponse{Success: true, Message: "Not recording"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}

	if v, ok := raw["recordCount"]; !ok || v.(float64) != 0 {
		t.Errorf("recordCount = %v, want 0", raw["recordCount"])
	}
}

func TestStatusResponseNullSession(t *testing.T) {
	data, err := json.Marshal(StatusResponse{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"isRecording":false,"session":null}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestStatusResponseWithSession(t *testing.T) {
	j := `{"isRecording":true,"session":{"sessionId":"abc-1","meetingUrl":"https://meet.google.com/abc","started":"2026-04-01T12:00:00Z","updated":"2026-04-01T12:05:00Z","recordCount":7}}`

	var resp StatusResponse
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !resp.IsRecording {
		t.Error("isRecording = false, want true")
	}
	if resp.Session == nil || resp.Session.RecordCount != 7 {
		t.Fatalf("session = %+v, want recordCount 7", resp.Session)
	}
	if want := time.Date(2026, 4, 1, 12, 5, 0, 0, time.UTC); !resp.Session.Updated.Equal(want) {
		t.Errorf("updated = %v, want %v", resp.Session.Updated, want)
	}
}

func TestStartResponseOmitsSessionIDOnFailure(t *testing.T) {
	data, err := json.Marshal(StartResponse{Success: false, Message: "Failed to open database"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"success":false,"message":"Failed to open database"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestEventCaption(t *testing.T) {
	j := `{"event":"caption","sessionId":"sess-1","record":{"id":3,"speaker":"Alice","text":"Hello there","timestamp":"2026-04-01T12:00:00.5Z"}}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Event != EventCaption {
		t.Errorf("event = %q, want %q", ev.Event, EventCaption)
	}
	if ev.Record == nil || ev.Record.ID != 3 {
		t.Fatalf("record = %+v, want id 3", ev.Record)
	}
	if ev.Record.Speaker != "Alice" {
		t.Errorf("speaker = %q, want %q", ev.Record.Speaker, "Alice")
	}
	if ev.IsRecording != nil {
		t.Errorf("isRecording = %v, want nil", ev.IsRecording)
	}
}

func TestEventStatus(t *testing.T) {
	j := `{"event":"status","isRecording":false}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.IsRecording == nil || *ev.IsRecording {
		t.Errorf("isRecording = %v, want false", ev.IsRecording)
	}
}

func TestGetSessionNullDecodesToNil(t *testing.T) {
	s := &caption.Session{SessionID: "placeholder"}
	if err := json.Unmarshal([]byte("null"), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != nil {
		t.Errorf("session = %+v, want nil", s)
	}
}

func TestBoolPtr(t *testing.T) {
	p := BoolPtr(true)
	if p == nil || !*p {
		t.Error("BoolPtr(true) should return pointer to true")
	}

	p = BoolPtr(false)
	if p == nil || *p {
		t.Error("BoolPtr(false) should return pointer to false")
	}
}
