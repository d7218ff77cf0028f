// Package daemon provides the server, client and protocol types for talking
// to the caption daemon over a Unix socket using NDJSON.
package daemon

import "github.com/filipezaidan/google-meet-captions/internal/caption"

// Actions understood by the daemon.
const (
	ActionStart           = "start"
	ActionStop            = "stop"
	ActionGetStatus       = "getStatus"
	ActionListSessions    = "listSessions"
	ActionGetSession      = "getSession"
	ActionDownloadSession = "downloadSession"
	ActionSubscribe       = "subscribe"
)

// Event names streamed to subscribers.
const (
	EventCaption = "caption"
	EventStatus  = "status"
)

// Command is sent from a client to the daemon.
type Command struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`
}

// Result is the generic success/failure reply. It answers downloadSession,
// subscribe, unknown actions and malformed requests.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// StartResponse answers start.
type StartResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// StopResponse answers stop.
type StopResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RecordCount int    `json:"recordCount"`
}

// StatusResponse answers getStatus. Session is null before the first start.
type StatusResponse struct {
	IsRecording bool             `json:"isRecording"`
	Session     *caption.Summary `json:"session"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event       string          `json:"event"`
	SessionID   string          `json:"sessionId,omitempty"`
	Record      *caption.Record `json:"record,omitempty"`
	IsRecording *bool           `json:"isRecording,omitempty"`
}

// BoolPtr returns a pointer to a bool value. Convenience for building events.
func BoolPtr(b bool) *bool { return &b }
