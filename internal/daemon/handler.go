package daemon

import (
	"context"
	"errors"
	"log/slog"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/recorder"
)

// Engine is the recorder surface the daemon drives. *recorder.Engine
// satisfies it.
type Engine interface {
	Start(ctx context.Context) (recorder.StartResult, error)
	Stop(ctx context.Context) recorder.StopResult
	Status() recorder.Status
	Sessions(ctx context.Context) ([]caption.Summary, error)
	Session(ctx context.Context, sessionID string) (*caption.Session, error)
	Export(ctx context.Context, sessionID string) (string, error)
	Subscribe(buffer int) (<-chan recorder.Event, func())
}

var _ Engine = (*recorder.Engine)(nil)

// Handler maps commands onto engine calls. Every command yields exactly one
// JSON-serialisable response; engine failures become {success:false} with a
// short message.
type Handler struct {
	engine Engine
	log    *slog.Logger
}

// NewHandler returns a Handler for engine.
func NewHandler(engine Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, log: log}
}

// Dispatch runs one command. subscribe is handled by the server, since it
// takes over the connection.
func (h *Handler) Dispatch(ctx context.Context, cmd Command) any {
	switch cmd.Action {
	case ActionStart:
		res, err := h.engine.Start(ctx)
		if err != nil {
			return StartResponse{Success: false, Message: h.userMessage(cmd, err)}
		}
		msg := "Recording started"
		if res.AlreadyRecording {
			msg = "Already recording"
		}
		return StartResponse{Success: true, Message: msg, SessionID: res.SessionID}

	case ActionStop:
		res := h.engine.Stop(ctx)
		switch {
		case res.WasIdle:
			return StopResponse{Success: true, Message: "Not recording", RecordCount: 0}
		case res.SaveErr != nil:
			return StopResponse{Success: true, Message: "Recording stopped, but the final save failed", RecordCount: res.RecordCount}
		}
		return StopResponse{Success: true, Message: "Recording stopped", RecordCount: res.RecordCount}

	case ActionGetStatus:
		st := h.engine.Status()
		return StatusResponse{IsRecording: st.Recording, Session: st.Session}

	case ActionListSessions:
		sums, err := h.engine.Sessions(ctx)
		if err != nil {
			h.log.Error("Failed to list sessions", "error", err)
			return []caption.Summary{}
		}
		return sums

	case ActionGetSession:
		s, err := h.engine.Session(ctx, cmd.SessionID)
		if err != nil {
			if !errors.Is(err, caption.ErrSessionNotFound) {
				h.log.Error("Failed to get session", "sessionId", cmd.SessionID, "error", err)
			}
			return (*caption.Session)(nil)
		}
		return s

	case ActionDownloadSession:
		path, err := h.engine.Export(ctx, cmd.SessionID)
		if err != nil {
			return Result{Success: false, Message: h.userMessage(cmd, err)}
		}
		return Result{Success: true, Message: "Download started", Path: path}

	case "":
		return Result{Success: false, Message: "Missing action"}
	}

	return Result{Success: false, Message: "Unknown action: " + cmd.Action}
}

// userMessage turns an engine error into the text shown to the user.
func (h *Handler) userMessage(cmd Command, err error) string {
	switch {
	case errors.Is(err, recorder.ErrContainerNotFound):
		return "Captions container not found. Enable captions first."
	case errors.Is(err, recorder.ErrStorageUnavailable):
		return "Failed to open database"
	case errors.Is(err, caption.ErrSessionNotFound):
		return "Session not found"
	}

	h.log.Error("Command failed", "action", cmd.Action, "sessionId", cmd.SessionID, "error", err)
	if cmd.Action == ActionDownloadSession {
		return "Failed to download"
	}
	return "Internal error"
}
