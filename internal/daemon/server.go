package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/recorder"
)

const (
	// DefaultRequestTimeout bounds every command, including the final save
	// on stop.
	DefaultRequestTimeout = 10 * time.Second

	writeTimeout    = 5 * time.Second
	maxLineSize     = 1024 * 1024
	subscribeBuffer = 64
)

// ErrAlreadyRunning means another daemon answers on the socket.
var ErrAlreadyRunning = errors.New("daemon already running")

// Server accepts NDJSON connections on a Unix socket. Each connection is
// served by its own goroutine and may send any number of commands.
type Server struct {
	path    string
	engine  Engine
	handler *Handler
	log     *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer returns a server for engine listening at path.
func NewServer(path string, engine Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		path:    path,
		engine:  engine,
		handler: NewHandler(engine, log),
		log:     log,
		timeout: DefaultRequestTimeout,
		conns:   make(map[net.Conn]struct{}),
	}
}

// SetRequestTimeout overrides DefaultRequestTimeout.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Listen binds the socket. A stale socket file left by a crashed daemon is
// removed; a live one is reported as ErrAlreadyRunning.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if conn, err := net.DialTimeout("unix", s.path, time.Second); err == nil {
			conn.Close()
			return fmt.Errorf("%w at %s", ErrAlreadyRunning, s.path)
		}
		s.log.Debug("Removing stale socket", "path", s.path)
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled, then closes every open
// connection, waits for their handlers and removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	s.log.Info("Control socket listening", "path", s.path)

	go func() {
		<-ctx.Done()
		ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}()

	defer func() {
		s.wg.Wait()
		os.Remove(s.path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		if ctx.Err() != nil {
			conn.Close()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			s.log.Debug("Malformed request", "error", err)
			if err := s.write(conn, Result{Success: false, Message: "Malformed request"}); err != nil {
				return
			}
			continue
		}

		if cmd.Action == ActionSubscribe {
			s.stream(ctx, conn, scanner)
			return
		}

		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		resp := s.handler.Dispatch(rctx, cmd)
		cancel()

		if err := s.write(conn, resp); err != nil {
			s.log.Debug("Write response failed", "action", cmd.Action, "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Debug("Connection read failed", "error", err)
	}
}

// stream dedicates conn to engine events until the client hangs up.
func (s *Server) stream(ctx context.Context, conn net.Conn, scanner *bufio.Scanner) {
	events, cancel := s.engine.Subscribe(subscribeBuffer)
	defer cancel()

	if err := s.write(conn, Result{Success: true, Message: "Subscribed"}); err != nil {
		return
	}
	st := s.engine.Status()
	initial := Event{Event: EventStatus, IsRecording: BoolPtr(st.Recording)}
	if st.Session != nil {
		initial.SessionID = st.Session.SessionID
	}
	if err := s.write(conn, initial); err != nil {
		return
	}

	// Input after subscribe is ignored; EOF ends the stream.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for scanner.Scan() {
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.write(conn, toEvent(ev)); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	data = append(data, '\n')

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = conn.Write(data)
	return err
}

func toEvent(ev recorder.Event) Event {
	if ev.Kind == EventCaption {
		return Event{Event: EventCaption, SessionID: ev.SessionID, Record: ev.Record}
	}
	return Event{Event: EventStatus, SessionID: ev.SessionID, IsRecording: BoolPtr(ev.Recording)}
}
