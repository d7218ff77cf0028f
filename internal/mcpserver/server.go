// Package mcpserver exposes saved caption sessions as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/export"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Reader is the read side of the session store.
type Reader interface {
	Load(ctx context.Context, sessionID string) (*caption.Session, error)
	List(ctx context.Context) ([]caption.Summary, error)
}

// Tools binds the MCP tool handlers to a session store.
type Tools struct {
	store     Reader
	exportDir string
}

// NewTools returns handlers reading from store. export_session writes into
// exportDir.
func NewTools(store Reader, exportDir string) *Tools {
	return &Tools{store: store, exportDir: exportDir}
}

// New returns an MCP server with every tool registered.
func New(store Reader, exportDir string) *server.MCPServer {
	t := NewTools(store, exportDir)

	s := server.NewMCPServer("captions", Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recorded meeting caption sessions, most recently updated first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default: all).")),
	), t.ListSessions)

	s.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the full caption transcript of one recorded session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id as returned by list_sessions.")),
		mcp.WithString("format", mcp.Enum("text", "json"), mcp.Description("text (default) for a readable transcript, json for raw records.")),
	), t.GetSession)

	s.AddTool(mcp.NewTool("export_session",
		mcp.WithDescription("Write a session's caption records to <session_id>.json in the export directory."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id as returned by list_sessions.")),
	), t.ExportSession)

	return s
}

// Serve runs s over stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ListSessions handles list_sessions.
func (t *Tools) ListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sums, err := t.store.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions: %v", err)), nil
	}
	if limit := req.GetInt("limit", 0); limit > 0 && limit < len(sums) {
		sums = sums[:limit]
	}
	if len(sums) == 0 {
		return mcp.NewToolResultText("No sessions recorded yet."), nil
	}

	var b strings.Builder
	for _, s := range sums {
		fmt.Fprintf(&b, "%s  %s records  started %s  updated %s\n",
			s.SessionID,
			humanize.Comma(int64(s.RecordCount)),
			s.Started.Format("2006-01-02 15:04"),
			humanize.Time(s.Updated))
		if s.MeetingURL != "" {
			fmt.Fprintf(&b, "  %s\n", s.MeetingURL)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// GetSession handles get_session.
func (t *Tools) GetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s, err := t.store.Load(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(lookupError(id, err)), nil
	}

	switch req.GetString("format", "text") {
	case "json":
		data, err := export.Marshal(s.Records)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	case "text":
		return mcp.NewToolResultText(export.Transcript(s)), nil
	default:
		return mcp.NewToolResultError("format must be text or json"), nil
	}
}

// ExportSession handles export_session.
func (t *Tools) ExportSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s, err := t.store.Load(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(lookupError(id, err)), nil
	}

	path, err := export.WriteFile(t.exportDir, s)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Exported %d records to %s", len(s.Records), path)), nil
}

func lookupError(id string, err error) string {
	if errors.Is(err, caption.ErrSessionNotFound) {
		return fmt.Sprintf("session %q not found", id)
	}
	return fmt.Sprintf("load session: %v", err)
}
