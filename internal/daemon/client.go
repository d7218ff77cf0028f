package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
)

// SocketPath returns the default daemon socket path.
func SocketPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "captions", "captions.sock")
}

// ErrConnectionClosed is returned when the daemon hangs up mid-exchange.
var ErrConnectionClosed = errors.New("connection closed")

// Client communicates with the caption daemon over a Unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &Client{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Call sends cmd and decodes one response line into out.
func (c *Client) Call(cmd Command, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	line, err := c.readLine()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(line, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Start begins recording.
func (c *Client) Start() (StartResponse, error) {
	var resp StartResponse
	err := c.Call(Command{Action: ActionStart}, &resp)
	return resp, err
}

// Stop ends recording.
func (c *Client) Stop() (StopResponse, error) {
	var resp StopResponse
	err := c.Call(Command{Action: ActionStop}, &resp)
	return resp, err
}

// Status reports whether the daemon is recording.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.Call(Command{Action: ActionGetStatus}, &resp)
	return resp, err
}

// ListSessions returns stored sessions, most recently updated first.
func (c *Client) ListSessions() ([]caption.Summary, error) {
	var sums []caption.Summary
	if err := c.Call(Command{Action: ActionListSessions}, &sums); err != nil {
		return nil, err
	}
	return sums, nil
}

// GetSession returns one session, or caption.ErrSessionNotFound when the
// daemon answers null.
func (c *Client) GetSession(sessionID string) (*caption.Session, error) {
	var s *caption.Session
	if err := c.Call(Command{Action: ActionGetSession, SessionID: sessionID}, &s); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, caption.ErrSessionNotFound
	}
	return s, nil
}

// DownloadSession asks the daemon to write the session's export file.
func (c *Client) DownloadSession(sessionID string) (Result, error) {
	var resp Result
	err := c.Call(Command{Action: ActionDownloadSession, SessionID: sessionID}, &resp)
	return resp, err
}

// Subscribe switches the connection to event streaming. Use ReadEvent in a
// loop afterwards; the connection no longer accepts commands.
func (c *Client) Subscribe() error {
	var resp Result
	if err := c.Call(Command{Action: ActionSubscribe}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("subscribe: %s", resp.Message)
	}
	return nil
}

// ReadEvent reads the next NDJSON event line. Blocks until data arrives.
func (c *Client) ReadEvent() (Event, error) {
	line, err := c.readLine()
	if err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	return ev, nil
}

func (c *Client) readLine() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrConnectionClosed
	}
	return c.scanner.Bytes(), nil
}
