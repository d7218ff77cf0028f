package app

import (
	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/daemon"
)

// DaemonConnectedMsg is sent when both daemon connections are established.
type DaemonConnectedMsg struct {
	Client   *daemon.Client // for commands (start, stop, status, sessions)
	EvClient *daemon.Client // for event subscription
}

// DaemonConnectErrorMsg is sent when the daemon connection fails.
type DaemonConnectErrorMsg struct {
	Err error
}

// DaemonEventMsg wraps a streamed event from the daemon.
type DaemonEventMsg struct {
	Event daemon.Event
}

// DaemonEventErrorMsg is sent when the event stream or a command fails.
type DaemonEventErrorMsg struct {
	Err error
}

// StatusResponseMsg carries the response to a getStatus command.
type StatusResponseMsg struct {
	Response daemon.StatusResponse
}

// StartResponseMsg carries the response to a start command.
type StartResponseMsg struct {
	Response daemon.StartResponse
}

// StopResponseMsg carries the response to a stop command.
type StopResponseMsg struct {
	Response daemon.StopResponse
}

// SessionsLoadedMsg carries the stored session list.
type SessionsLoadedMsg struct {
	Sessions []caption.Summary
}

// SessionLoadedMsg carries one full session. Session is nil when the daemon
// no longer has it.
type SessionLoadedMsg struct {
	SessionID string
	Session   *caption.Session
}

// ExportResponseMsg carries the response to a downloadSession command.
type ExportResponseMsg struct {
	Response daemon.Result
}

// ClearTransientErrorMsg clears a transient error or notice after a timeout.
type ClearTransientErrorMsg struct{}

// ReconnectTickMsg triggers a reconnection attempt.
type ReconnectTickMsg struct{}
